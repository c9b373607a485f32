package promotion

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-engine/internal/pricing"
)

// Kind enumerates the supported promotion types.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixed        Kind = "fixed"
	KindFreeDelivery Kind = "free_delivery"
)

var (
	// ErrNotFound is returned by catalogs when a promotion id is unknown.
	ErrNotFound = errors.New("promotion not found")
	// ErrAlreadyRedeemed indicates the customer has redeemed the promotion before.
	ErrAlreadyRedeemed = errors.New("promotion already redeemed by customer")
	// ErrGlobalLimitReached indicates the promotion exhausted its global quota.
	ErrGlobalLimitReached = errors.New("promotion global usage limit reached")
)

var (
	amountPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
	capPattern    = regexp.MustCompile(`C(\d+)`)
)

// Terms are the numeric values encoded in a promotion name, e.g. "P15C100"
// carries Amount 15 and Cap 100. They are parsed once when the promotion is
// loaded.
type Terms struct {
	Amount decimal.Decimal
	Cap    *decimal.Decimal
}

// ParseTerms extracts the first number in name as the amount and the first
// C<digits> token as the cap.
func ParseTerms(name string) Terms {
	var t Terms
	if m := amountPattern.FindStringSubmatch(name); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			t.Amount = v
		}
	}
	if m := capPattern.FindStringSubmatch(name); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			t.Cap = &v
		}
	}
	return t
}

// Promotion is immutable reference data describing a promotion code.
type Promotion struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Kind                Kind           `json:"kind"`
	MinSpend            *pricing.Money `json:"minSpend,omitempty"`
	MaxDiscountCap      *pricing.Money `json:"maxDiscountCap,omitempty"`
	GlobalLimit         *int           `json:"globalLimit,omitempty"`
	EligibleProductIDs  []string       `json:"eligibleProductIds,omitempty"`
	EligibleCategoryIDs []string       `json:"eligibleCategoryIds,omitempty"`
	StartDate           time.Time      `json:"startDate"`
	EndDate             time.Time      `json:"endDate"`
	PeriodDays          int            `json:"periodDays"`
	Terms               Terms          `json:"-"`
}

// Prepared returns a copy of p with Terms parsed from its name. Stores call it
// when loading promotions.
func (p Promotion) Prepared() Promotion {
	p.Terms = ParseTerms(p.Name)
	return p
}

// ActiveAt reports whether now falls inside the inclusive validity window.
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Usage is one redemption record in the per-customer ledger.
type Usage struct {
	PromotionID string `json:"promotionId"`
}

// Catalog provides read access to the promotion reference data.
type Catalog interface {
	Promotions(ctx context.Context) ([]Promotion, error)
	FindByID(ctx context.Context, id string) (*Promotion, error)
}

// Ledger tracks promotion redemptions per customer and globally.
type Ledger interface {
	CustomerUsage(ctx context.Context, customerID string) ([]Usage, error)
	GlobalUsage(ctx context.Context, promotionID string) (int, error)
	RecordUsage(ctx context.Context, customerID, promotionID string) error
}

// UsageReleaser undoes a recorded redemption, e.g. when the checkout that
// reserved it could not be committed.
type UsageReleaser interface {
	ReleaseUsage(ctx context.Context, customerID, promotionID string) error
}

// AtomicLedger is implemented by ledgers able to check first-use and the
// global limit in the same step that records the usage.
type AtomicLedger interface {
	Ledger
	RecordUsageWithin(ctx context.Context, customerID, promotionID string, globalLimit *int) error
}
