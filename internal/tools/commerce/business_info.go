package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// Ensure BusinessInfoTool implements tools.Tool
var _ tools.Tool = (*BusinessInfoTool)(nil)

// BusinessInfoTool answers workspace-level informational questions
type BusinessInfoTool struct {
	info BusinessInfoService
}

// NewBusinessInfoTool creates the business info tool
func NewBusinessInfoTool(info BusinessInfoService) *BusinessInfoTool {
	return &BusinessInfoTool{info: info}
}

type businessInfoInput struct {
	Topic string `json:"topic"`
}

func (t *BusinessInfoTool) Name() string { return "business_info" }
func (t *BusinessInfoTool) Description() string {
	return "Look up business information such as opening hours, location, delivery terms or payment options."
}
func (t *BusinessInfoTool) Category() tools.Category              { return tools.CategoryQuery }
func (t *BusinessInfoTool) RequiresConfirmation() bool            { return false }
func (t *BusinessInfoTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *BusinessInfoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"topic": map[string]interface{}{
				"type":        "string",
				"description": "Info topic, e.g. hours, location, delivery, payments",
			},
		},
		"required": []string{"topic"},
	}
}

func (t *BusinessInfoTool) Validate(input json.RawMessage) error {
	var in businessInfoInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "business_info input is not valid JSON")
	}
	if in.Topic == "" {
		return errors.NewValidationError("topic", "topic is required", nil)
	}
	return nil
}

func (t *BusinessInfoTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	var in businessInfoInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.Fail("invalid input"), nil
	}

	answer, err := t.info.GetInfo(ctx, tc.WorkspaceID, in.Topic)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return tools.Fail("no information available for this topic"), nil
		}
		return nil, errors.Wrap(err, "business info lookup failed")
	}

	return tools.Ok(map[string]interface{}{
		"topic":  in.Topic,
		"answer": answer,
	}), nil
}
