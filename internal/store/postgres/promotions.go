package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/checkout-engine/internal/promotion"
)

const promotionColumns = `id, name, kind, min_spend_minor, max_discount_cap_minor, global_limit,
    eligible_product_ids, eligible_category_ids, start_date, end_date, period_days`

const listPromotions = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY id`

const getPromotion = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

func scanPromotion(row pgx.Row) (promotion.Promotion, error) {
	var (
		p    promotion.Promotion
		kind string
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&kind,
		&p.MinSpend,
		&p.MaxDiscountCap,
		&p.GlobalLimit,
		&p.EligibleProductIDs,
		&p.EligibleCategoryIDs,
		&p.StartDate,
		&p.EndDate,
		&p.PeriodDays,
	)
	if err != nil {
		return promotion.Promotion{}, err
	}
	p.Kind = promotion.Kind(kind)
	return p.Prepared(), nil
}

// Promotions implements promotion.Catalog.
func (q *Queries) Promotions(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := q.db.Query(ctx, listPromotions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []promotion.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// FindByID implements promotion.Catalog.
func (q *Queries) FindByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	p, err := scanPromotion(q.db.QueryRow(ctx, getPromotion, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

const upsertPromotion = `
INSERT INTO promotions (` + promotionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    min_spend_minor = EXCLUDED.min_spend_minor,
    max_discount_cap_minor = EXCLUDED.max_discount_cap_minor,
    global_limit = EXCLUDED.global_limit,
    eligible_product_ids = EXCLUDED.eligible_product_ids,
    eligible_category_ids = EXCLUDED.eligible_category_ids,
    start_date = EXCLUDED.start_date,
    end_date = EXCLUDED.end_date,
    period_days = EXCLUDED.period_days`

// UpsertPromotion inserts or replaces a promotion row.
func (q *Queries) UpsertPromotion(ctx context.Context, p promotion.Promotion) error {
	_, err := q.db.Exec(ctx, upsertPromotion,
		p.ID,
		p.Name,
		string(p.Kind),
		p.MinSpend,
		p.MaxDiscountCap,
		p.GlobalLimit,
		nonNilStrings(p.EligibleProductIDs),
		nonNilStrings(p.EligibleCategoryIDs),
		p.StartDate,
		p.EndDate,
		p.PeriodDays,
	)
	return err
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
