package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// Ensure CheckStockTool implements tools.Tool
var _ tools.Tool = (*CheckStockTool)(nil)

// CheckStockTool reports current stock for one product
type CheckStockTool struct {
	catalog CatalogService
}

// NewCheckStockTool creates the stock lookup tool
func NewCheckStockTool(catalog CatalogService) *CheckStockTool {
	return &CheckStockTool{catalog: catalog}
}

type checkStockInput struct {
	ProductID string `json:"product_id"`
}

func (t *CheckStockTool) Name() string { return "check_stock" }
func (t *CheckStockTool) Description() string {
	return "Check how many units of a product are currently in stock."
}
func (t *CheckStockTool) Category() tools.Category              { return tools.CategoryQuery }
func (t *CheckStockTool) RequiresConfirmation() bool            { return false }
func (t *CheckStockTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *CheckStockTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"product_id": map[string]interface{}{
				"type":        "string",
				"description": "Product identifier; omit to use the product the conversation is focused on",
			},
		},
	}
}

func (t *CheckStockTool) Validate(input json.RawMessage) error {
	var in checkStockInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "check_stock input is not valid JSON")
	}
	return nil
}

func (t *CheckStockTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	var in checkStockInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.Fail("invalid input"), nil
	}

	productID := in.ProductID
	if productID == "" {
		productID = tc.Memory.FocusedProductID
	}
	if productID == "" {
		return tools.Fail("no product specified and none in focus"), nil
	}

	stock, err := t.catalog.GetStock(ctx, tc.WorkspaceID, productID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return tools.Fail("product not found"), nil
		}
		return nil, errors.Wrap(err, "stock lookup failed")
	}

	return tools.Ok(map[string]interface{}{
		"product_id": productID,
		"in_stock":   stock,
	}), nil
}
