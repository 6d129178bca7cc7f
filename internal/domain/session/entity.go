package session

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"concierge/internal/domain/conversation"
)

// Memory is the per-conversation working memory. It carries everything a
// tool handler needs for cross-turn continuity and is rewritten whole after
// every turn, expiring with the session.
type Memory struct {
	SessionID   string `json:"session_id"`
	WorkspaceID string `json:"workspace_id"`
	CustomerID  string `json:"customer_id"`

	State conversation.AgentState `json:"state"`

	Cart                *Cart                `json:"cart,omitempty"`
	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`
	Pending             *PendingFlow         `json:"pending,omitempty"`

	// Last entity the customer focused on (product id), used by tools to
	// resolve anaphoric references like "add two of those"
	FocusedProductID string `json:"focused_product_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMemory creates working memory for a fresh session
func NewMemory(sessionID, workspaceID, customerID string) *Memory {
	now := time.Now().UTC()
	return &Memory{
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		CustomerID:  customerID,
		State:       conversation.StateIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Cart is the order draft being assembled during a task flow
type Cart struct {
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency"`
}

// CartItem is one ordered line with quantity and unit price
type CartItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity times unit price
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total computes the cart total across all lines
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// AddItem merges a line into the cart, summing quantity for repeat products
func (c *Cart) AddItem(item CartItem) {
	for idx := range c.Items {
		if c.Items[idx].ProductID == item.ProductID {
			c.Items[idx].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// PendingConfirmation holds a mutation intercepted by the execution loop
// until the customer explicitly confirms it
type PendingConfirmation struct {
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input"`
	Prompt    string          `json:"prompt"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the confirmation window has passed
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// PendingFlow is a tagged union of multi-step collection flows: exactly one
// field is non-nil at a time. Adding a flow means adding a variant here so
// every consumer has to handle it.
type PendingFlow struct {
	OrderDetails  *OrderDetailsFlow  `json:"order_details,omitempty"`
	QuantityQuery *QuantityQueryFlow `json:"quantity_query,omitempty"`
}

// OrderDetailsFlow tracks which order fields are still being collected
type OrderDetailsFlow struct {
	MissingFields   []string `json:"missing_fields"`
	DeliveryAddress string   `json:"delivery_address,omitempty"`
	ContactName     string   `json:"contact_name,omitempty"`
}

// QuantityQueryFlow tracks a product waiting on a quantity from the customer
type QuantityQueryFlow struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

// Active reports whether any flow variant is set
func (f *PendingFlow) Active() bool {
	return f != nil && (f.OrderDetails != nil || f.QuantityQuery != nil)
}
