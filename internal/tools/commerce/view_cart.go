package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/tools"
)

// Ensure ViewCartTool implements tools.Tool
var _ tools.Tool = (*ViewCartTool)(nil)

// ViewCartTool returns the session's current cart contents
type ViewCartTool struct{}

// NewViewCartTool creates the cart inspection tool
func NewViewCartTool() *ViewCartTool {
	return &ViewCartTool{}
}

func (t *ViewCartTool) Name() string { return "view_cart" }
func (t *ViewCartTool) Description() string {
	return "Show the items currently in the customer's cart with the running total."
}
func (t *ViewCartTool) Category() tools.Category              { return tools.CategoryQuery }
func (t *ViewCartTool) RequiresConfirmation() bool            { return false }
func (t *ViewCartTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *ViewCartTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ViewCartTool) Validate(json.RawMessage) error { return nil }

func (t *ViewCartTool) Execute(_ context.Context, _ json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	cart := tc.Memory.Cart
	if cart.IsEmpty() {
		return tools.Ok(map[string]interface{}{
			"empty": true,
		}), nil
	}

	return tools.Ok(map[string]interface{}{
		"items":    cart.Items,
		"total":    cart.Total().String(),
		"currency": cart.Currency,
	}), nil
}
