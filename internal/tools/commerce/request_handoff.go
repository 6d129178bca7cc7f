package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/domain/conversation"
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// Ensure RequestHandoffTool implements tools.Tool
var _ tools.Tool = (*RequestHandoffTool)(nil)

// RequestHandoffTool lets the reasoning provider hand the conversation to a
// human operator. The tool only requests the transition; the orchestrator
// owns the escalation side effects (handoff row, operator alert).
type RequestHandoffTool struct{}

// NewRequestHandoffTool creates the handoff request tool
func NewRequestHandoffTool() *RequestHandoffTool {
	return &RequestHandoffTool{}
}

type requestHandoffInput struct {
	Reason string `json:"reason"`
}

func (t *RequestHandoffTool) Name() string { return "request_handoff" }
func (t *RequestHandoffTool) Description() string {
	return "Hand the conversation over to a human operator when the customer asks for one or the request cannot be handled automatically."
}
func (t *RequestHandoffTool) Category() tools.Category              { return tools.CategorySystem }
func (t *RequestHandoffTool) RequiresConfirmation() bool            { return false }
func (t *RequestHandoffTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *RequestHandoffTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "Short reason the conversation needs a human",
			},
		},
		"required": []string{"reason"},
	}
}

func (t *RequestHandoffTool) Validate(input json.RawMessage) error {
	var in requestHandoffInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "request_handoff input is not valid JSON")
	}
	if in.Reason == "" {
		return errors.NewValidationError("reason", "reason is required", nil)
	}
	return nil
}

func (t *RequestHandoffTool) Execute(_ context.Context, input json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
	var in requestHandoffInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.Fail("invalid input"), nil
	}

	return &tools.Result{
		Success:         true,
		Data:            map[string]interface{}{"reason": in.Reason},
		StateTransition: conversation.StateHandoff,
	}, nil
}
