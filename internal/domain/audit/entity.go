package audit

import (
	"time"

	"github.com/google/uuid"
)

// ToolExecution is a write-once audit record of one tool call inside a turn
type ToolExecution struct {
	ID          uuid.UUID
	TurnID      uuid.UUID
	SessionID   string
	WorkspaceID string

	ToolName string
	Category string
	Input    string
	Result   string
	Success  bool
	Error    string

	DurationMs               int64
	StateTransitionRequested string

	CreatedAt time.Time
}

// TurnRecord summarizes one processed inbound message
type TurnRecord struct {
	ID          uuid.UUID
	SessionID   string
	WorkspaceID string

	State            string
	Thread           string
	ToolsUsed        []string
	TokensUsed       int
	HandoffTriggered bool
	MessageSent      bool

	DurationMs int64
	CreatedAt  time.Time
}
