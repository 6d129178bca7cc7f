package handoff

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists escalation requests durably
type Repository interface {
	// Create stores a new request
	Create(ctx context.Context, request *Request) error

	// FindPending returns the pending request for a session, ErrNotFound if none
	FindPending(ctx context.Context, sessionID string) (*Request, error)

	// UpdateStatus moves a request through its lifecycle
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// Notifier alerts operators about a new escalation. Fire-and-forget:
// callers log failures and move on.
type Notifier interface {
	NotifyHandoff(ctx context.Context, request *Request) error
}
