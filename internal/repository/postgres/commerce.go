package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"concierge/internal/tools/commerce"
	"concierge/pkg/errors"
)

// Compile-time checks
var (
	_ commerce.CatalogService      = (*CatalogRepository)(nil)
	_ commerce.OrderService        = (*OrderRepository)(nil)
	_ commerce.BusinessInfoService = (*BusinessInfoRepository)(nil)
)

type productRow struct {
	ID       string          `db:"id"`
	Name     string          `db:"name"`
	Price    decimal.Decimal `db:"price"`
	Currency string          `db:"currency"`
	InStock  int             `db:"in_stock"`
}

// CatalogRepository serves product lookups from the workspace catalog
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a catalog repository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// SearchProducts returns up to limit products matching the query, in-stock
// items first
func (r *CatalogRepository) SearchProducts(ctx context.Context, workspaceID, query string, limit int) ([]commerce.Product, error) {
	var rows []productRow

	q := `
		SELECT id, name, price, currency, in_stock FROM products
		WHERE workspace_id = $1
		  AND name ILIKE '%' || $2 || '%'
		ORDER BY (in_stock > 0) DESC, name ASC
		LIMIT $3`

	if err := r.db.SelectContext(ctx, &rows, q, workspaceID, query, limit); err != nil {
		return nil, errors.Wrap(err, "search products")
	}

	products := make([]commerce.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, commerce.Product(row))
	}
	return products, nil
}

// GetStock returns the available quantity for one product
func (r *CatalogRepository) GetStock(ctx context.Context, workspaceID, productID string) (int, error) {
	var stock int

	q := `SELECT in_stock FROM products WHERE workspace_id = $1 AND id = $2`

	err := r.db.GetContext(ctx, &stock, q, workspaceID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(errors.ErrNotFound, "product: id=%s", productID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "get stock")
	}
	return stock, nil
}

// OrderRepository persists confirmed orders
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates an order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder submits an order exactly once per idempotency key. A retried
// submission with the same key returns the original order id instead of
// writing a duplicate.
func (r *OrderRepository) CreateOrder(ctx context.Context, workspaceID, sessionID, customerID string, items []commerce.OrderItem, idempotencyKey string) (string, error) {
	if len(items) == 0 {
		return "", errors.Wrap(errors.ErrInvalidInput, "order has no items")
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin order tx")
	}
	defer tx.Rollback() //nolint:errcheck

	orderID := uuid.New().String()
	now := time.Now().UTC()

	insert := `
		INSERT INTO orders (id, workspace_id, session_id, customer_id, total, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 'submitted', $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING`

	res, err := tx.ExecContext(ctx, insert,
		orderID, workspaceID, sessionID, customerID, total, idempotencyKey, now,
	)
	if err != nil {
		return "", errors.Wrap(err, "insert order")
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrap(err, "insert order")
	}
	if inserted == 0 {
		// Replay of an already submitted order
		var existingID string
		q := `SELECT id FROM orders WHERE idempotency_key = $1`
		if err := tx.GetContext(ctx, &existingID, q, idempotencyKey); err != nil {
			return "", errors.Wrap(err, "find existing order")
		}
		return existingID, nil
	}

	itemInsert := `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, itemInsert,
			orderID, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
		); err != nil {
			return "", errors.Wrap(err, "insert order item")
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit order")
	}
	return orderID, nil
}

// BusinessInfoRepository answers workspace-level info lookups
type BusinessInfoRepository struct {
	db *sqlx.DB
}

// NewBusinessInfoRepository creates a business info repository
func NewBusinessInfoRepository(db *sqlx.DB) *BusinessInfoRepository {
	return &BusinessInfoRepository{db: db}
}

// GetInfo returns the stored answer for one topic (hours, location,
// delivery and similar)
func (r *BusinessInfoRepository) GetInfo(ctx context.Context, workspaceID, topic string) (string, error) {
	var content string

	q := `SELECT content FROM workspace_info WHERE workspace_id = $1 AND topic = $2`

	err := r.db.GetContext(ctx, &content, q, workspaceID, topic)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(errors.ErrNotFound, "workspace info: topic=%s", topic)
	}
	if err != nil {
		return "", errors.Wrap(err, "get workspace info")
	}
	return content, nil
}
