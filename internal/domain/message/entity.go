package message

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a stored chat message
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
	RoleOperator  Role = "operator"
)

// Message is one stored turn of the conversation log
type Message struct {
	ID          uuid.UUID `db:"id"`
	SessionID   string    `db:"session_id"`
	WorkspaceID string    `db:"workspace_id"`
	Role        Role      `db:"role"`
	Content     string    `db:"content"`
	CreatedAt   time.Time `db:"created_at"`
}

// New creates a message ready to append to the log
func New(sessionID, workspaceID string, role Role, content string) *Message {
	return &Message{
		ID:          uuid.New(),
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Role:        role,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
}
