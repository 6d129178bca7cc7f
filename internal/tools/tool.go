package tools

import (
	"context"
	"encoding/json"

	"concierge/internal/domain/conversation"
	"concierge/internal/domain/session"
)

// Category classifies what a tool may do
type Category string

const (
	CategoryQuery    Category = "query"
	CategoryMutation Category = "mutation"
	CategorySystem   Category = "system"
)

// Tool is one capability the reasoning provider may invoke mid-turn.
// Implementations are registered once at startup and must be safe for
// concurrent use across sessions.
type Tool interface {
	// Name returns the unique tool identifier
	Name() string

	// Description returns a short summary exposed to the provider
	Description() string

	// Category classifies the tool
	Category() Category

	// Schema returns the JSON schema of the tool's input
	Schema() map[string]interface{}

	// RequiresConfirmation reports whether the execution loop must hold the
	// call until the customer explicitly confirms it
	RequiresConfirmation() bool

	// IdempotencyKey derives a dedupe key from the input, or "" if the tool
	// has no idempotency semantics
	IdempotencyKey(input json.RawMessage) string

	// Validate checks the input before execution
	Validate(input json.RawMessage) error

	// Execute performs the tool's action against the turn context
	Execute(ctx context.Context, input json.RawMessage, tc *TurnContext) (*Result, error)
}

// TurnContext is what a tool handler sees of the current turn. Handlers
// mutate Memory in place; the execution loop persists it after each call.
type TurnContext struct {
	SessionID   string
	WorkspaceID string
	CustomerID  string
	Memory      *session.Memory
}

// Result is the outcome of one tool execution
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`

	// StateTransition, when set, asks the orchestrator to move the FSM.
	// Illegal requests are ignored, not fatal.
	StateTransition conversation.AgentState `json:"state_transition,omitempty"`

	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	ConfirmationMessage  string `json:"confirmation_message,omitempty"`
}

// Text renders the result as the textual payload fed back to the provider
func (r *Result) Text() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(data)
}

// Fail builds an unsuccessful result with an error message
func Fail(message string) *Result {
	return &Result{Success: false, Error: message}
}

// Ok builds a successful result carrying data
func Ok(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}
