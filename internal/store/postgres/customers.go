package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/checkout-engine/internal/customer"
)

const getCustomer = `
SELECT id, name, loyalty_points, assigned_promotion_ids
FROM customers
WHERE id = $1`

// Customers adapts Queries to customer.Store.
type Customers struct {
	Q *Queries
}

// Get implements customer.Store.
func (c Customers) Get(ctx context.Context, id string) (customer.Account, error) {
	var a customer.Account
	err := c.Q.db.QueryRow(ctx, getCustomer, id).Scan(&a.ID, &a.Name, &a.LoyaltyPoints, &a.AssignedPromotionIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return customer.Account{}, customer.ErrNotFound
		}
		return customer.Account{}, err
	}
	return a, nil
}

const saveCustomer = `
INSERT INTO customers (id, name, loyalty_points, assigned_promotion_ids, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    loyalty_points = EXCLUDED.loyalty_points,
    assigned_promotion_ids = EXCLUDED.assigned_promotion_ids,
    updated_at = now()`

// Save implements customer.Store.
func (c Customers) Save(ctx context.Context, a customer.Account) error {
	_, err := c.Q.db.Exec(ctx, saveCustomer, a.ID, a.Name, max(a.LoyaltyPoints, 0), nonNilStrings(a.AssignedPromotionIDs))
	return err
}
