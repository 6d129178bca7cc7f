package commerce

import (
	"context"
	"encoding/json"

	"concierge/internal/tools"
	"concierge/pkg/errors"
)

const defaultSearchLimit = 5

// Ensure SearchProductsTool implements tools.Tool
var _ tools.Tool = (*SearchProductsTool)(nil)

// SearchProductsTool looks up catalog products by free-text query
type SearchProductsTool struct {
	catalog CatalogService
}

// NewSearchProductsTool creates the catalog search tool
func NewSearchProductsTool(catalog CatalogService) *SearchProductsTool {
	return &SearchProductsTool{catalog: catalog}
}

type searchProductsInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (t *SearchProductsTool) Name() string { return "search_products" }
func (t *SearchProductsTool) Description() string {
	return "Search the workspace catalog by product name or description. Returns matching products with price and stock."
}
func (t *SearchProductsTool) Category() tools.Category              { return tools.CategoryQuery }
func (t *SearchProductsTool) RequiresConfirmation() bool            { return false }
func (t *SearchProductsTool) IdempotencyKey(json.RawMessage) string { return "" }

func (t *SearchProductsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text product search query",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchProductsTool) Validate(input json.RawMessage) error {
	var in searchProductsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "search_products input is not valid JSON")
	}
	if in.Query == "" {
		return errors.NewValidationError("query", "query is required", nil)
	}
	return nil
}

func (t *SearchProductsTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	var in searchProductsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return tools.Fail("invalid input"), nil
	}
	if in.Limit <= 0 {
		in.Limit = defaultSearchLimit
	}

	products, err := t.catalog.SearchProducts(ctx, tc.WorkspaceID, in.Query, in.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "catalog search failed")
	}
	if len(products) == 0 {
		return tools.Fail("no products matched the query"), nil
	}

	// Remember the best match so a follow-up "add it" resolves unambiguously
	tc.Memory.FocusedProductID = products[0].ID

	return tools.Ok(map[string]interface{}{
		"products": products,
		"count":    len(products),
	}), nil
}
