package commerce

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the tools expose to the reasoning provider
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	InStock  int             `json:"in_stock"`
}

// CatalogService is the external catalog collaborator
type CatalogService interface {
	SearchProducts(ctx context.Context, workspaceID, query string, limit int) ([]Product, error)
	GetStock(ctx context.Context, workspaceID, productID string) (int, error)
}

// OrderService is the external order collaborator. CreateOrder must be
// idempotent on the supplied key.
type OrderService interface {
	CreateOrder(ctx context.Context, workspaceID, sessionID, customerID string, items []OrderItem, idempotencyKey string) (string, error)
}

// OrderItem is one line of an order submission
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// BusinessInfoService resolves workspace-level info answers (hours,
// location, delivery terms)
type BusinessInfoService interface {
	GetInfo(ctx context.Context, workspaceID, topic string) (string, error)
}
