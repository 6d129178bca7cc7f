package handoff

import (
	"context"
	"time"

	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// PolicyConfig tunes escalation behavior
type PolicyConfig struct {
	// MaxConsecutiveFailures forces a handoff once reached
	MaxConsecutiveFailures int

	// RepeatWindow is how long a pending request suppresses re-alerting
	RepeatWindow time.Duration
}

// Policy decides when automation suspends and requests human takeover
type Policy struct {
	repo     Repository
	notifier Notifier
	cfg      PolicyConfig
	log      *logger.Logger
}

// NewPolicy creates an escalation policy
func NewPolicy(repo Repository, notifier Notifier, cfg PolicyConfig) *Policy {
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 2
	}
	if cfg.RepeatWindow == 0 {
		cfg.RepeatWindow = 2 * time.Hour
	}

	return &Policy{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.Get().With("component", "handoff_policy"),
	}
}

// MaxConsecutiveFailures exposes the configured failure threshold
func (p *Policy) MaxConsecutiveFailures() int {
	return p.cfg.MaxConsecutiveFailures
}

// Escalate creates or reuses an escalation request for the session. A
// pending request younger than the repeat window is reused so one unresolved
// escalation does not page operators twice; a stale one is expired and
// replaced, which re-alerts after the cooldown.
func (p *Policy) Escalate(ctx context.Context, workspaceID, sessionID string, trigger Trigger, reason string) (*Request, error) {
	existing, err := p.repo.FindPending(ctx, sessionID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrapf(err, "find pending handoff: session_id=%s", sessionID)
	}

	now := time.Now().UTC()
	if existing != nil {
		if existing.Age(now) < p.cfg.RepeatWindow {
			p.log.Debugw("Reusing pending handoff request",
				"session_id", sessionID,
				"request_id", existing.ID,
				"age", existing.Age(now),
			)
			return existing, nil
		}

		if err := p.repo.UpdateStatus(ctx, existing.ID, StatusExpired); err != nil {
			p.log.Warnw("Failed to expire stale handoff request",
				"request_id", existing.ID,
				"error", err,
			)
		}
	}

	request := NewRequest(workspaceID, sessionID, trigger, reason)
	if err := p.repo.Create(ctx, request); err != nil {
		return nil, errors.Wrapf(err, "create handoff request: session_id=%s", sessionID)
	}

	// Operator notification is best-effort and never fails the turn
	if err := p.notifier.NotifyHandoff(ctx, request); err != nil {
		p.log.Warnw("Failed to notify operators about handoff",
			"session_id", sessionID,
			"request_id", request.ID,
			"error", err,
		)
	}

	p.log.Infow("Session escalated to operator",
		"session_id", sessionID,
		"trigger", trigger,
		"reason", reason,
	)
	return request, nil
}

// Resolve marks the session's pending escalation as handled. Missing
// requests are not an error; release must succeed regardless.
func (p *Policy) Resolve(ctx context.Context, sessionID string) error {
	existing, err := p.repo.FindPending(ctx, sessionID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "find pending handoff: session_id=%s", sessionID)
	}

	return p.repo.UpdateStatus(ctx, existing.ID, StatusResolved)
}
