package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/checkout-engine/internal/fulfillment"
)

const listProducts = `
SELECT id, name, price_minor, shop_id, stock_quantity, category
FROM products
ORDER BY id`

// Products implements fulfillment.ProductCatalogReader.
func (q *Queries) Products(ctx context.Context) ([]fulfillment.Product, error) {
	rows, err := q.db.Query(ctx, listProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []fulfillment.Product
	for rows.Next() {
		var p fulfillment.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ShopID, &p.StockQuantity, &p.Category); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const decrementStock = `
UPDATE products AS p
SET stock_quantity = GREATEST(0, p.stock_quantity - $2)
FROM (SELECT id, stock_quantity FROM products WHERE id = $1 FOR UPDATE) AS prev
WHERE p.id = prev.id
RETURNING prev.stock_quantity, p.stock_quantity`

// DecrementStock implements fulfillment.StockWriter with a single row-locked
// update. Stock never goes below zero.
func (q *Queries) DecrementStock(ctx context.Context, productID string, quantity int) (fulfillment.StockChange, error) {
	change := fulfillment.StockChange{ProductID: productID, QuantitySold: quantity}
	err := q.db.QueryRow(ctx, decrementStock, productID, quantity).Scan(&change.PreviousStock, &change.NewStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fulfillment.StockChange{}, fmt.Errorf("%s: %w", productID, fulfillment.ErrProductNotFound)
		}
		return fulfillment.StockChange{}, err
	}
	return change, nil
}

const upsertProduct = `
INSERT INTO products (id, name, price_minor, shop_id, stock_quantity, category)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    price_minor = EXCLUDED.price_minor,
    shop_id = EXCLUDED.shop_id,
    stock_quantity = EXCLUDED.stock_quantity,
    category = EXCLUDED.category`

// UpsertProduct inserts or replaces a product row.
func (q *Queries) UpsertProduct(ctx context.Context, p fulfillment.Product) error {
	_, err := q.db.Exec(ctx, upsertProduct, p.ID, p.Name, p.Price, p.ShopID, p.StockQuantity, p.Category)
	return err
}
