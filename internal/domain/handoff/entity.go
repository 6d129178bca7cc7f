package handoff

import (
	"time"

	"github.com/google/uuid"
)

// Trigger identifies why automation was suspended
type Trigger string

const (
	TriggerUserRequest         Trigger = "user_request"
	TriggerNegativeSentiment   Trigger = "negative_sentiment"
	TriggerConsecutiveFailures Trigger = "consecutive_failures"
)

// Status tracks the lifecycle of an escalation
type Status string

const (
	StatusPending  Status = "pending"
	StatusExpired  Status = "expired"
	StatusResolved Status = "resolved"
)

// Priority ranks how urgently an operator should pick the session up
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Request is one escalation awaiting operator takeover
type Request struct {
	ID          uuid.UUID `db:"id"`
	WorkspaceID string    `db:"workspace_id"`
	SessionID   string    `db:"session_id"`
	Trigger     Trigger   `db:"trigger"`
	Reason      string    `db:"reason"`
	Priority    Priority  `db:"priority"`
	Status      Status    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// NewRequest creates a pending escalation
func NewRequest(workspaceID, sessionID string, trigger Trigger, reason string) *Request {
	now := time.Now().UTC()

	priority := PriorityNormal
	if trigger == TriggerNegativeSentiment {
		priority = PriorityHigh
	}

	return &Request{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		Trigger:     trigger,
		Reason:      reason,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Age returns how long the request has been open
func (r *Request) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
