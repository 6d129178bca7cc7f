package ai

import "context"

// Provider is the reasoning-provider contract consumed by the turn
// orchestrator: one completion over the accumulated history plus the
// available tool schemas.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest carries one reasoning-provider call
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSchema
	MaxTokens    int
	Temperature  float64
}

// Message is a single entry of the provider-facing history
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on tool-result messages
}

// Role identifies the author of a provider message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolSchema describes a callable tool to the provider
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// ToolCall is one tool invocation requested by the provider
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded input
}

// CompletionResponse is the provider's answer for one call
type CompletionResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// StopReason indicates why the provider stopped generating
type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonToolCalls StopReason = "tool_calls"
	StopReasonLength    StopReason = "length"
)

// Usage tracks token consumption for one call
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
