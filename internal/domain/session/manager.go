package session

import (
	"context"
	"time"

	"concierge/internal/domain/conversation"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// Manager is the short-term memory manager. Memory is opaque to the router
// and state machine; only tool handlers and the orchestrator's
// context-building step interpret its contents.
type Manager struct {
	repo Repository
	ttl  time.Duration
	log  *logger.Logger
}

// NewManager creates a new session memory manager
func NewManager(repo Repository, ttl time.Duration) *Manager {
	return &Manager{
		repo: repo,
		ttl:  ttl,
		log:  logger.Get().With("component", "session_manager"),
	}
}

// InitSession returns existing memory for the session or creates it.
// Idempotent: calling it twice for the same session id yields the same
// record, never a duplicate.
func (m *Manager) InitSession(ctx context.Context, sessionID, workspaceID, customerID string) (*Memory, error) {
	existing, err := m.repo.Get(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrapf(err, "load session memory: session_id=%s", sessionID)
	}

	memory := NewMemory(sessionID, workspaceID, customerID)
	if err := m.repo.Save(ctx, memory, m.ttl); err != nil {
		return nil, errors.Wrapf(err, "init session memory: session_id=%s", sessionID)
	}

	m.log.Debugw("Session memory initialized",
		"session_id", sessionID,
		"workspace_id", workspaceID,
	)
	return memory, nil
}

// GetSession retrieves memory, or nil when the session has no memory yet
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Memory, error) {
	memory, err := m.repo.Get(ctx, sessionID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session memory: session_id=%s", sessionID)
	}
	return memory, nil
}

// SaveSession rewrites memory whole, refreshing its TTL
func (m *Manager) SaveSession(ctx context.Context, memory *Memory) error {
	memory.UpdatedAt = time.Now().UTC()
	return m.repo.Save(ctx, memory, m.ttl)
}

// UpdateState is a partial update restricted to the FSM field, used by the
// tool loop when a tool result carries a state transition
func (m *Manager) UpdateState(ctx context.Context, sessionID string, newState conversation.AgentState) error {
	memory, err := m.repo.Get(ctx, sessionID)
	if errors.Is(err, errors.ErrNotFound) {
		return errors.Wrapf(errors.ErrNotFound, "update state for unknown session: session_id=%s", sessionID)
	}
	if err != nil {
		return err
	}

	memory.State = newState
	return m.SaveSession(ctx, memory)
}

// EndSession clears working memory
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	return m.repo.Delete(ctx, sessionID)
}
