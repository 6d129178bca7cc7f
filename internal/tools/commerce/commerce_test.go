package commerce

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain/conversation"
	"concierge/internal/domain/session"
	"concierge/internal/tools"
)

type mockCatalog struct {
	searchFunc func(ctx context.Context, workspaceID, query string, limit int) ([]Product, error)
	stockFunc  func(ctx context.Context, workspaceID, productID string) (int, error)
}

func (m *mockCatalog) SearchProducts(ctx context.Context, workspaceID, query string, limit int) ([]Product, error) {
	return m.searchFunc(ctx, workspaceID, query, limit)
}

func (m *mockCatalog) GetStock(ctx context.Context, workspaceID, productID string) (int, error) {
	return m.stockFunc(ctx, workspaceID, productID)
}

type mockOrders struct {
	createFunc func(ctx context.Context, workspaceID, sessionID, customerID string, items []OrderItem, idempotencyKey string) (string, error)
	calls      int
}

func (m *mockOrders) CreateOrder(ctx context.Context, workspaceID, sessionID, customerID string, items []OrderItem, idempotencyKey string) (string, error) {
	m.calls++
	return m.createFunc(ctx, workspaceID, sessionID, customerID, items, idempotencyKey)
}

func widgetCatalog() *mockCatalog {
	return &mockCatalog{
		searchFunc: func(_ context.Context, _, _ string, _ int) ([]Product, error) {
			return []Product{{
				ID:       "prod-1",
				Name:     "Widget",
				Price:    decimal.NewFromInt(10),
				Currency: "EUR",
				InStock:  20,
			}}, nil
		},
		stockFunc: func(_ context.Context, _, _ string) (int, error) {
			return 20, nil
		},
	}
}

func turnContext() *tools.TurnContext {
	return &tools.TurnContext{
		SessionID:   "sess-1",
		WorkspaceID: "ws-1",
		CustomerID:  "cust-1",
		Memory:      session.NewMemory("sess-1", "ws-1", "cust-1"),
	}
}

func TestSearchProducts_SetsFocus(t *testing.T) {
	tool := NewSearchProductsTool(widgetCatalog())
	tc := turnContext()

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"widget"}`), tc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "prod-1", tc.Memory.FocusedProductID)
}

func TestSearchProducts_NoMatches(t *testing.T) {
	catalog := &mockCatalog{
		searchFunc: func(_ context.Context, _, _ string, _ int) ([]Product, error) {
			return nil, nil
		},
	}
	tool := NewSearchProductsTool(catalog)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"nothing"}`), turnContext())
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSearchProducts_ValidateRejectsEmptyQuery(t *testing.T) {
	tool := NewSearchProductsTool(widgetCatalog())
	assert.Error(t, tool.Validate(json.RawMessage(`{}`)))
	assert.NoError(t, tool.Validate(json.RawMessage(`{"query":"widget"}`)))
}

func TestCheckStock_FallsBackToFocusedProduct(t *testing.T) {
	tool := NewCheckStockTool(widgetCatalog())
	tc := turnContext()
	tc.Memory.FocusedProductID = "prod-1"

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`), tc)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data := res.Data.(map[string]interface{})
	assert.Equal(t, "prod-1", data["product_id"])
}

func TestCheckStock_NoProductInFocus(t *testing.T) {
	tool := NewCheckStockTool(widgetCatalog())

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`), turnContext())
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestAddToCart_AddsLineAndRequestsCollecting(t *testing.T) {
	tool := NewAddToCartTool(widgetCatalog())
	tc := turnContext()

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"widget","quantity":5}`), tc)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, conversation.StateCollecting, res.StateTransition)

	require.NotNil(t, tc.Memory.Cart)
	require.Len(t, tc.Memory.Cart.Items, 1)
	assert.Equal(t, 5, tc.Memory.Cart.Items[0].Quantity)
	assert.Equal(t, "50", tc.Memory.Cart.Total().String())
}

func TestAddToCart_InsufficientStock(t *testing.T) {
	tool := NewAddToCartTool(widgetCatalog())
	tc := turnContext()

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"widget","quantity":100}`), tc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, tc.Memory.Cart.IsEmpty())
}

func TestAddToCart_ValidateRejectsZeroQuantity(t *testing.T) {
	tool := NewAddToCartTool(widgetCatalog())
	assert.Error(t, tool.Validate(json.RawMessage(`{"quantity":0}`)))
	assert.Error(t, tool.Validate(json.RawMessage(`{"quantity":-2}`)))
	assert.NoError(t, tool.Validate(json.RawMessage(`{"quantity":3}`)))
}

func TestViewCart_EmptyAndFilled(t *testing.T) {
	tool := NewViewCartTool()
	tc := turnContext()

	res, err := tool.Execute(context.Background(), nil, tc)
	require.NoError(t, err)
	assert.Equal(t, true, res.Data.(map[string]interface{})["empty"])

	tc.Memory.Cart = &session.Cart{Currency: "EUR"}
	tc.Memory.Cart.AddItem(session.CartItem{ProductID: "prod-1", Name: "Widget", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})

	res, err = tool.Execute(context.Background(), nil, tc)
	require.NoError(t, err)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, "20", data["total"])
	assert.Equal(t, "EUR", data["currency"])
}

func TestCreateOrder_RequiresConfirmationAndClearsCart(t *testing.T) {
	orders := &mockOrders{
		createFunc: func(_ context.Context, _, _, _ string, items []OrderItem, key string) (string, error) {
			assert.NotEmpty(t, key)
			assert.Len(t, items, 1)
			return "order-42", nil
		},
	}
	tool := NewCreateOrderTool(orders)
	assert.True(t, tool.RequiresConfirmation())

	tc := turnContext()
	tc.Memory.Cart = &session.Cart{Currency: "EUR"}
	tc.Memory.Cart.AddItem(session.CartItem{ProductID: "prod-1", Name: "Widget", Quantity: 5, UnitPrice: decimal.NewFromInt(10)})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`), tc)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, conversation.StateDone, res.StateTransition)
	assert.Equal(t, "order-42", res.Data.(map[string]interface{})["order_id"])
	assert.Nil(t, tc.Memory.Cart)
	assert.Equal(t, 1, orders.calls)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	tool := NewCreateOrderTool(&mockOrders{})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`), turnContext())
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCreateOrder_IdempotencyKeyStableAcrossCalls(t *testing.T) {
	tool := NewCreateOrderTool(&mockOrders{})
	input := json.RawMessage(`{"delivery_address":"Main St 1"}`)

	assert.Equal(t, tool.IdempotencyKey(input), tool.IdempotencyKey(input))
	assert.NotEqual(t, tool.IdempotencyKey(input), tool.IdempotencyKey(json.RawMessage(`{"delivery_address":"Other St 2"}`)))
}

func TestRequestHandoff_RequestsHandoffState(t *testing.T) {
	tool := NewRequestHandoffTool()

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"reason":"customer asked for a human"}`), turnContext())
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, conversation.StateHandoff, res.StateTransition)
}

func TestBuildRegistry_WiresFullSurface(t *testing.T) {
	registry, err := BuildRegistry(widgetCatalog(), &mockOrders{}, nil)
	require.NoError(t, err)

	for _, name := range []string{
		"search_products", "check_stock", "business_info",
		"view_cart", "add_to_cart", "create_order", "request_handoff",
	} {
		_, ok := registry.Get(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, registry.List(), 7)
}
