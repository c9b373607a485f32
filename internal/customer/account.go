package customer

import (
	"context"
	"errors"
	"slices"
)

// ErrNotFound indicates the requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Account is the customer master data the checkout engine reads and mutates.
type Account struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	LoyaltyPoints        int64    `json:"loyaltyPoints"`
	AssignedPromotionIDs []string `json:"assignedPromotionIds"`
}

// Store loads and persists customer accounts.
type Store interface {
	Get(ctx context.Context, id string) (Account, error)
	Save(ctx context.Context, account Account) error
}

// HasPromotion reports whether promotionID is assigned to the account.
func (a Account) HasPromotion(promotionID string) bool {
	return slices.Contains(a.AssignedPromotionIDs, promotionID)
}

// WithoutPromotion returns a copy of a with promotionID removed from the assigned set.
func (a Account) WithoutPromotion(promotionID string) Account {
	out := a.Clone()
	if promotionID == "" {
		return out
	}
	out.AssignedPromotionIDs = slices.DeleteFunc(out.AssignedPromotionIDs, func(id string) bool {
		return id == promotionID
	})
	return out
}

// Clone returns a deep copy so callers can mutate the result safely.
func (a Account) Clone() Account {
	out := a
	if a.AssignedPromotionIDs != nil {
		out.AssignedPromotionIDs = slices.Clone(a.AssignedPromotionIDs)
	}
	return out
}
