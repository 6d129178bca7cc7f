package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"concierge/internal/adapters/ai"
	"concierge/internal/domain/audit"
	"concierge/internal/domain/conversation"
	"concierge/internal/domain/handoff"
	"concierge/internal/domain/message"
	"concierge/internal/domain/session"
	"concierge/internal/metrics"
	"concierge/internal/tools"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

const (
	apologyText   = "Sorry, something went wrong on my side. Could you send that again?"
	cancelledText = "No problem, I won't go ahead with that."
)

// MemoryService is the long-term memory surface the orchestrator consumes
type MemoryService interface {
	BuildContext(ctx context.Context, sessionID string) (string, error)
	UpdateFromTurn(ctx context.Context, sessionID, workspaceID string)
}

// EscalationPolicy decides and records human takeover
type EscalationPolicy interface {
	Escalate(ctx context.Context, workspaceID, sessionID string, trigger handoff.Trigger, reason string) (*handoff.Request, error)
	Resolve(ctx context.Context, sessionID string) error
	MaxConsecutiveFailures() int
}

// Config tunes the turn orchestrator
type Config struct {
	MaxIterations   int
	MaxTokens       int
	ToolCallTimeout time.Duration
	ConfirmationTTL time.Duration
	HistoryWindow   int
}

// InboundMessage is one customer message entering the orchestrator
type InboundMessage struct {
	SessionID   string
	WorkspaceID string
	CustomerID  string
	Text        string
}

// TurnResult is what one processed turn hands back to the transport layer
type TurnResult struct {
	Response          string
	State             conversation.AgentState
	Thread            conversation.Thread
	ToolsUsed         []string
	TokensUsed        int
	ShouldSendMessage bool
	HandoffTriggered  bool
	HandoffReason     string
}

// Orchestrator turns one inbound chat message into a routed, stateful,
// tool-executing turn. One instance serves all sessions; per-session turn
// ordering is the transport's responsibility (keyed consumption), not ours.
type Orchestrator struct {
	provider ai.Provider
	registry *tools.Registry
	states   conversation.StateRepository
	sessions *session.Manager
	longTerm MemoryService
	history  message.Repository
	audits   audit.Repository
	policy   EscalationPolicy
	cfg      Config
	log      *logger.Logger
}

// New creates a turn orchestrator
func New(
	provider ai.Provider,
	registry *tools.Registry,
	states conversation.StateRepository,
	sessions *session.Manager,
	longTerm MemoryService,
	history message.Repository,
	audits audit.Repository,
	policy EscalationPolicy,
	cfg Config,
) *Orchestrator {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.ToolCallTimeout == 0 {
		cfg.ToolCallTimeout = 15 * time.Second
	}
	if cfg.ConfirmationTTL == 0 {
		cfg.ConfirmationTTL = 10 * time.Minute
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = 20
	}

	return &Orchestrator{
		provider: provider,
		registry: registry,
		states:   states,
		sessions: sessions,
		longTerm: longTerm,
		history:  history,
		audits:   audits,
		policy:   policy,
		cfg:      cfg,
		log:      logger.Get().With("component", "orchestrator"),
	}
}

// HandleMessage processes one inbound message end to end: load state, route,
// run the tool loop, persist, audit, and decide whether to reply at all.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg InboundMessage) (*TurnResult, error) {
	started := time.Now()
	turnID := uuid.New()

	state, err := o.states.Load(ctx, msg.SessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "load session state: session_id=%s", msg.SessionID)
	}

	// Suspended sessions never reach the reasoning provider and never
	// produce an automated reply; the message still lands in the log so the
	// operator sees it
	if state.State == conversation.StateHandoff {
		o.appendToLog(ctx, msg.SessionID, msg.WorkspaceID, message.RoleCustomer, msg.Text)
		return &TurnResult{
			State:             conversation.StateHandoff,
			Thread:            state.Thread,
			ShouldSendMessage: false,
		}, nil
	}

	mem, err := o.sessions.InitSession(ctx, msg.SessionID, msg.WorkspaceID, msg.CustomerID)
	if err != nil {
		return nil, errors.Wrapf(err, "init session: session_id=%s", msg.SessionID)
	}

	o.appendToLog(ctx, msg.SessionID, msg.WorkspaceID, message.RoleCustomer, msg.Text)

	route := Route(msg.Text, state.State, state.Thread)

	if route.HandoffRequested || route.SentimentNegative {
		trigger := handoff.TriggerUserRequest
		reason := "customer asked for a human"
		if route.SentimentNegative && !route.HandoffRequested {
			trigger = handoff.TriggerNegativeSentiment
			reason = "negative sentiment detected"
		}
		return o.escalate(ctx, started, turnID, state, mem, trigger, reason, handoffFallbackText), nil
	}

	o.applyRoute(state, route)

	if pending := mem.PendingConfirmation; pending != nil {
		now := time.Now().UTC()
		switch {
		case pending.Expired(now):
			mem.PendingConfirmation = nil
		case IsAffirmation(msg.Text):
			return o.executePendingConfirmation(ctx, started, turnID, state, mem)
		case IsRejection(msg.Text):
			return o.cancelPendingConfirmation(ctx, started, turnID, state, mem), nil
		}
	}

	longTermContext, err := o.longTerm.BuildContext(ctx, msg.SessionID)
	if err != nil {
		o.log.Warnw("Long-term context unavailable", "session_id", msg.SessionID, "error", err)
		longTermContext = ""
	}

	outcome, err := o.runToolLoop(ctx, turnID, state, mem,
		buildSystemPrompt(state, mem, longTermContext),
		o.providerHistory(ctx, msg),
	)
	if err != nil {
		return o.failTurn(ctx, started, turnID, state, mem, err)
	}

	if outcome.handoffReason != "" {
		return o.escalate(ctx, started, turnID, state, mem,
			handoff.TriggerUserRequest, outcome.handoffReason, outcome.text), nil
	}

	// Failure tracking resets only on a fully successful turn
	state.RecordSuccess()
	return o.finishTurn(ctx, started, turnID, state, mem, outcome), nil
}

// ReleaseHandoff is the administrative way out of HANDOFF: back to IDLE with
// failure tracking cleared and the pending escalation resolved.
func (o *Orchestrator) ReleaseHandoff(ctx context.Context, sessionID string) error {
	state, err := o.states.Load(ctx, sessionID)
	if err != nil {
		return errors.Wrapf(err, "load session state: session_id=%s", sessionID)
	}

	machine := conversation.NewStateMachine(state.State)
	if err := machine.Release(); err != nil {
		return err
	}

	state.State = machine.State()
	state.RecordSuccess()
	state.UpdatedAt = time.Now().UTC()
	if err := o.states.Save(ctx, sessionID, state); err != nil {
		return errors.Wrapf(err, "persist released state: session_id=%s", sessionID)
	}

	if mem, err := o.sessions.GetSession(ctx, sessionID); err == nil && mem != nil {
		mem.State = machine.State()
		if err := o.sessions.SaveSession(ctx, mem); err != nil {
			o.log.Warnw("Failed to sync session memory on release", "session_id", sessionID, "error", err)
		}
	}

	if err := o.policy.Resolve(ctx, sessionID); err != nil {
		o.log.Warnw("Failed to resolve handoff request", "session_id", sessionID, "error", err)
	}

	o.log.Infow("Session released from handoff", "session_id", sessionID)
	return nil
}

// applyRoute updates the thread position, snapshotting an active task before
// an informational detour and restoring it when the task resumes
func (o *Orchestrator) applyRoute(state *conversation.SessionState, route RouteResult) {
	switch {
	case route.ShouldInterrupt:
		state.Interrupt()
	case route.Thread == conversation.ThreadTask && state.Thread == conversation.ThreadInfo:
		if !state.Resume() {
			state.Thread = conversation.ThreadTask
		}
	default:
		state.Thread = route.Thread
	}
}

// executePendingConfirmation runs the stashed confirmation-gated call after
// an explicit customer yes, without another provider round-trip
func (o *Orchestrator) executePendingConfirmation(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
) (*TurnResult, error) {
	pending := mem.PendingConfirmation
	mem.PendingConfirmation = nil

	tool, ok := o.registry.Get(pending.Tool)
	if !ok {
		o.log.Errorw("Pending confirmation references unknown tool",
			"session_id", mem.SessionID, "tool", pending.Tool)
		return o.finishTurn(ctx, started, turnID, state, mem, &loopOutcome{text: apologyText}), nil
	}

	execStarted := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolCallTimeout)
	result, err := tool.Execute(execCtx, pending.Input, &tools.TurnContext{
		SessionID:   mem.SessionID,
		WorkspaceID: mem.WorkspaceID,
		CustomerID:  mem.CustomerID,
		Memory:      mem,
	})
	cancel()
	duration := time.Since(execStarted)

	if err != nil {
		metrics.RecordToolExecution(pending.Tool, false, duration)
		return o.failTurn(ctx, started, turnID, state, mem, err)
	}

	o.auditToolCall(ctx, turnID, mem, pending.Tool, string(tool.Category()), pending.Input, result, duration)
	metrics.RecordToolExecution(pending.Tool, result.Success, duration)

	outcome := &loopOutcome{toolsUsed: []string{pending.Tool}}
	if result.StateTransition != "" {
		machine := conversation.NewStateMachine(state.State)
		o.applyTransition(ctx, machine, state, mem, pending.Tool, result)
	}

	if result.Success {
		outcome.text = confirmationSuccessText(result)
		state.RecordSuccess()
	} else {
		outcome.text = "Sorry, I couldn't complete that: " + result.Error
	}

	return o.finishTurn(ctx, started, turnID, state, mem, outcome), nil
}

func (o *Orchestrator) cancelPendingConfirmation(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
) *TurnResult {
	mem.PendingConfirmation = nil

	machine := conversation.NewStateMachine(state.State)
	if machine.CanTransition(conversation.StateCollecting) {
		_ = machine.Transition(conversation.StateCollecting)
		state.State = machine.State()
		mem.State = machine.State()
	}

	state.RecordSuccess()
	return o.finishTurn(ctx, started, turnID, state, mem, &loopOutcome{text: cancelledText})
}

// failTurn follows the escalation path for an unhandled turn error: bump the
// failure counter, hand off once the threshold is reached, otherwise apologize
// and stay put. Internal error detail never reaches the customer.
func (o *Orchestrator) failTurn(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
	cause error,
) (*TurnResult, error) {
	o.log.Errorw("Turn failed",
		"session_id", mem.SessionID,
		"failure_count", state.FailureCount+1,
		"error", cause,
	)
	state.RecordFailure(cause.Error(), time.Now().UTC())

	if state.FailureCount >= o.policy.MaxConsecutiveFailures() {
		return o.escalate(ctx, started, turnID, state, mem,
			handoff.TriggerConsecutiveFailures,
			"consecutive turn failures",
			handoffFallbackText), nil
	}

	o.persist(ctx, state, mem)
	o.recordTurn(ctx, started, turnID, state, mem, &loopOutcome{text: apologyText}, "failure", true, false)
	return &TurnResult{
		Response:          apologyText,
		State:             state.State,
		Thread:            state.Thread,
		ShouldSendMessage: true,
	}, nil
}

// escalate suspends automation: HANDOFF state, create-or-reuse the handoff
// request, best-effort operator alert, one final message to the customer.
// The failure counter survives the handoff; only the next successful turn
// after release clears it.
func (o *Orchestrator) escalate(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
	trigger handoff.Trigger,
	reason string,
	response string,
) *TurnResult {
	machine := conversation.NewStateMachine(state.State)
	if machine.State() != conversation.StateHandoff {
		_ = machine.Transition(conversation.StateHandoff)
	}
	state.State = machine.State()
	mem.State = machine.State()

	if _, err := o.policy.Escalate(ctx, mem.WorkspaceID, mem.SessionID, trigger, reason); err != nil {
		o.log.Errorw("Failed to record handoff request",
			"session_id", mem.SessionID,
			"trigger", trigger,
			"error", err,
		)
	}
	metrics.RecordHandoff(mem.WorkspaceID, string(trigger))

	if response == "" {
		response = handoffFallbackText
	}

	o.persist(ctx, state, mem)
	o.appendToLog(ctx, mem.SessionID, mem.WorkspaceID, message.RoleAssistant, response)
	o.recordTurn(ctx, started, turnID, state, mem, &loopOutcome{text: response}, "handoff", true, true)

	return &TurnResult{
		Response:          response,
		State:             state.State,
		Thread:            state.Thread,
		ShouldSendMessage: true,
		HandoffTriggered:  true,
		HandoffReason:     reason,
	}
}

// finishTurn persists everything a successful turn produced and assembles
// the result for the transport
func (o *Orchestrator) finishTurn(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
	outcome *loopOutcome,
) *TurnResult {
	if outcome.text == "" {
		outcome.text = apologyText
	}

	o.persist(ctx, state, mem)
	o.appendToLog(ctx, mem.SessionID, mem.WorkspaceID, message.RoleAssistant, outcome.text)
	o.recordTurn(ctx, started, turnID, state, mem, outcome, "success", true, false)

	// Summarization is best-effort and must never delay or fail the turn
	o.longTerm.UpdateFromTurn(ctx, mem.SessionID, mem.WorkspaceID)

	return &TurnResult{
		Response:          outcome.text,
		State:             state.State,
		Thread:            state.Thread,
		ToolsUsed:         outcome.toolsUsed,
		TokensUsed:        outcome.promptTokens + outcome.completionTokens,
		ShouldSendMessage: true,
	}
}

func (o *Orchestrator) persist(ctx context.Context, state *conversation.SessionState, mem *session.Memory) {
	state.UpdatedAt = time.Now().UTC()
	if err := o.states.Save(ctx, mem.SessionID, state); err != nil {
		o.log.Errorw("Failed to persist session state", "session_id", mem.SessionID, "error", err)
	}
	if err := o.sessions.SaveSession(ctx, mem); err != nil {
		o.log.Errorw("Failed to persist session memory", "session_id", mem.SessionID, "error", err)
	}
}

func (o *Orchestrator) appendToLog(ctx context.Context, sessionID, workspaceID string, role message.Role, content string) {
	if content == "" {
		return
	}
	if err := o.history.Append(ctx, message.New(sessionID, workspaceID, role, content)); err != nil {
		o.log.Warnw("Failed to append message to history", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) providerHistory(ctx context.Context, msg InboundMessage) []ai.Message {
	stored, err := o.history.ListRecent(ctx, msg.SessionID, nil, o.cfg.HistoryWindow)
	if err != nil || len(stored) == 0 {
		return []ai.Message{{Role: ai.RoleUser, Content: msg.Text}}
	}

	out := make([]ai.Message, 0, len(stored)+1)
	for _, m := range stored {
		role := ai.RoleUser
		if m.Role == message.RoleAssistant || m.Role == message.RoleOperator {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: m.Content})
	}

	last := stored[len(stored)-1]
	if last.Role != message.RoleCustomer || last.Content != msg.Text {
		out = append(out, ai.Message{Role: ai.RoleUser, Content: msg.Text})
	}
	return out
}

func (o *Orchestrator) recordTurn(
	ctx context.Context,
	started time.Time,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
	outcome *loopOutcome,
	metricOutcome string,
	messageSent bool,
	handoffTriggered bool,
) {
	duration := time.Since(started)

	record := &audit.TurnRecord{
		ID:               turnID,
		SessionID:        mem.SessionID,
		WorkspaceID:      mem.WorkspaceID,
		State:            string(state.State),
		Thread:           string(state.Thread),
		ToolsUsed:        outcome.toolsUsed,
		TokensUsed:       outcome.promptTokens + outcome.completionTokens,
		HandoffTriggered: handoffTriggered,
		MessageSent:      messageSent,
		DurationMs:       duration.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.audits.RecordTurn(ctx, record); err != nil {
		o.log.Warnw("Failed to record turn audit", "session_id", mem.SessionID, "error", err)
	}

	metrics.RecordTurn(mem.WorkspaceID, string(state.Thread), metricOutcome, duration)
	metrics.RecordTokens(mem.WorkspaceID, outcome.promptTokens, outcome.completionTokens)
}

func confirmationSuccessText(result *tools.Result) string {
	if data, ok := result.Data.(map[string]interface{}); ok {
		if orderID, ok := data["order_id"].(string); ok && orderID != "" {
			return "Done! Your order " + orderID + " has been placed. Thank you!"
		}
	}
	return "Done!"
}
