package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/domain/conversation"
	"concierge/internal/domain/session"
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// Ensure AddToCartTool implements tools.Tool
var _ tools.Tool = (*AddToCartTool)(nil)

// AddToCartTool adds a product line to the session's order draft
type AddToCartTool struct {
	catalog CatalogService
}

// NewAddToCartTool creates the cart mutation tool
func NewAddToCartTool(catalog CatalogService) *AddToCartTool {
	return &AddToCartTool{catalog: catalog}
}

type addToCartInput struct {
	ProductID string `json:"product_id"`
	Query     string `json:"query,omitempty"`
	Quantity  int    `json:"quantity"`
}

func (t *AddToCartTool) Name() string { return "add_to_cart" }
func (t *AddToCartTool) Description() string {
	return "Add a quantity of a product to the customer's cart. Accepts a product id or a search query; falls back to the product currently in focus."
}
func (t *AddToCartTool) Category() tools.Category              { return tools.CategoryMutation }
func (t *AddToCartTool) RequiresConfirmation() bool            { return false }
func (t *AddToCartTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *AddToCartTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"product_id": map[string]interface{}{
				"type":        "string",
				"description": "Product identifier; omit to use the product in focus",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text product lookup when the id is unknown",
			},
			"quantity": map[string]interface{}{
				"type":        "integer",
				"description": "Number of units to add",
			},
		},
		"required": []string{"quantity"},
	}
}

func (t *AddToCartTool) Validate(input json.RawMessage) error {
	var in addToCartInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "add_to_cart input is not valid JSON")
	}
	if in.Quantity <= 0 {
		return errors.NewValidationError("quantity", "quantity must be positive", in.Quantity)
	}
	return nil
}

func (t *AddToCartTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	var in addToCartInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.Fail("invalid input"), nil
	}

	product, err := t.resolveProduct(ctx, tc, in)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return tools.Fail("could not determine which product to add"), nil
	}
	if product.InStock < in.Quantity {
		return tools.Fail("not enough stock for the requested quantity"), nil
	}

	if tc.Memory.Cart == nil {
		tc.Memory.Cart = &session.Cart{Currency: product.Currency}
	}
	tc.Memory.Cart.AddItem(session.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  in.Quantity,
		UnitPrice: product.Price,
	})
	tc.Memory.FocusedProductID = product.ID

	return &tools.Result{
		Success: true,
		Data: map[string]interface{}{
			"product":  product.Name,
			"quantity": in.Quantity,
			"total":    tc.Memory.Cart.Total().String(),
			"currency": tc.Memory.Cart.Currency,
		},
		StateTransition: conversation.StateCollecting,
	}, nil
}

func (t *AddToCartTool) resolveProduct(ctx context.Context, tc *tools.TurnContext, in addToCartInput) (*Product, error) {
	query := ""
	switch {
	case in.ProductID != "":
		query = in.ProductID
	case in.Query != "":
		query = in.Query
	case tc.Memory.FocusedProductID != "":
		query = tc.Memory.FocusedProductID
	default:
		return nil, nil
	}

	products, err := t.catalog.SearchProducts(ctx, tc.WorkspaceID, query, 1)
	if err != nil {
		return nil, errors.Wrap(err, "product lookup failed")
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}
