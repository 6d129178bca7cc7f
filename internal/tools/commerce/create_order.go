package commerce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"concierge/internal/domain/conversation"
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// Ensure CreateOrderTool implements tools.Tool
var _ tools.Tool = (*CreateOrderTool)(nil)

// CreateOrderTool submits the session's cart as an order. It always requires
// explicit customer confirmation before the execution loop will run it.
type CreateOrderTool struct {
	orders OrderService
}

// NewCreateOrderTool creates the order submission tool
func NewCreateOrderTool(orders OrderService) *CreateOrderTool {
	return &CreateOrderTool{orders: orders}
}

type createOrderInput struct {
	DeliveryAddress string `json:"delivery_address,omitempty"`
	ContactName     string `json:"contact_name,omitempty"`
}

func (t *CreateOrderTool) Name() string { return "create_order" }
func (t *CreateOrderTool) Description() string {
	return "Place an order for everything in the customer's cart. Only call once the customer has confirmed the cart contents."
}
func (t *CreateOrderTool) Category() tools.Category   { return tools.CategoryMutation }
func (t *CreateOrderTool) RequiresConfirmation() bool { return true }

// IdempotencyKey hashes session plus input so a confirmed replay of the same
// order submission dedupes downstream
func (t *CreateOrderTool) IdempotencyKey(input json.RawMessage) string {
	sum := sha256.Sum256(append([]byte("create_order:"), input...))
	return hex.EncodeToString(sum[:16])
}

func (t *CreateOrderTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"delivery_address": map[string]interface{}{
				"type":        "string",
				"description": "Where to deliver the order",
			},
			"contact_name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the person receiving the order",
			},
		},
	}
}

func (t *CreateOrderTool) Validate(input json.RawMessage) error {
	var in createOrderInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "create_order input is not valid JSON")
	}
	return nil
}

func (t *CreateOrderTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	if tc.Memory.Cart.IsEmpty() {
		return tools.Fail("cart is empty, nothing to order"), nil
	}

	items := make([]OrderItem, 0, len(tc.Memory.Cart.Items))
	for _, line := range tc.Memory.Cart.Items {
		items = append(items, OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	key := fmt.Sprintf("%s:%s", tc.SessionID, t.IdempotencyKey(input))
	orderID, err := t.orders.CreateOrder(ctx, tc.WorkspaceID, tc.SessionID, tc.CustomerID, items, key)
	if err != nil {
		return nil, errors.Wrap(err, "order submission failed")
	}

	total := tc.Memory.Cart.Total().String()
	currency := tc.Memory.Cart.Currency

	// Order placed, the draft is spent
	tc.Memory.Cart = nil
	tc.Memory.Pending = nil

	return &tools.Result{
		Success: true,
		Data: map[string]interface{}{
			"order_id": orderID,
			"total":    total,
			"currency": currency,
		},
		StateTransition: conversation.StateDone,
	}, nil
}
