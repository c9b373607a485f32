package promotion

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-engine/internal/pricing"
)

// Reason explains why a promotion was rejected.
type Reason string

const (
	ReasonNotFound                 Reason = "not_found"
	ReasonInvalidCode              Reason = "invalid_code"
	ReasonExceededUsageLimit       Reason = "exceeded_usage_limit"
	ReasonExceededGlobalLimit      Reason = "exceeded_global_limit"
	ReasonInvalidFormat            Reason = "invalid_format"
	ReasonConflictWithActiveCoupon Reason = "conflict_with_active_coupon"
	ReasonExpired                  Reason = "expired"
	ReasonMinSpendNotMet           Reason = "min_spend_not_met"
	ReasonNotEligibleProduct       Reason = "not_eligible_product"
	ReasonNotEligibleCategory      Reason = "not_eligible_category"
	ReasonUnknown                  Reason = "unknown"
)

// Message returns a short human readable description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "promotion code not found"
	case ReasonInvalidCode:
		return "promotion code is not recognised"
	case ReasonExceededUsageLimit:
		return "promotion code has already been used by this customer"
	case ReasonExceededGlobalLimit:
		return "promotion code has reached its usage limit"
	case ReasonInvalidFormat:
		return "promotion code format is invalid"
	case ReasonConflictWithActiveCoupon:
		return "another coupon is already applied"
	case ReasonExpired:
		return "promotion code is not active"
	case ReasonMinSpendNotMet:
		return "minimum spend not met"
	case ReasonNotEligibleProduct:
		return "no eligible product in cart"
	case ReasonNotEligibleCategory:
		return "no product from an eligible category in cart"
	case "":
		return ""
	default:
		return "promotion code cannot be applied"
	}
}

var namePattern = regexp.MustCompile(`^[A-Z0-9C]+$`)

// Result is the outcome of validating a promotion against a checkout.
type Result struct {
	Valid         bool          `json:"valid"`
	Reason        Reason        `json:"reason,omitempty"`
	Discount      pricing.Money `json:"discountAmount"`
	FreeDelivery  bool          `json:"freeDelivery"`
	PromotionName string        `json:"promotionName,omitempty"`
}

// Facts is everything the state machine needs to decide; gathering it is the
// caller's job so Check stays deterministic.
type Facts struct {
	Now                 time.Time
	Subtotal            pricing.Money
	Lines               []pricing.Line
	InCatalog           bool
	CustomerRedeemed    bool
	GlobalUsed          int
	ActivePromotionName string
}

func reject(reason Reason) Result {
	return Result{Reason: reason}
}

func rejectNamed(reason Reason, p *Promotion) Result {
	return Result{Reason: reason, PromotionName: p.Name}
}

// Check runs the validation rules in precedence order; the first failing rule
// determines the reason.
func Check(p *Promotion, f Facts) Result {
	if p == nil {
		return reject(ReasonNotFound)
	}
	if !f.InCatalog {
		return reject(ReasonInvalidCode)
	}
	if f.CustomerRedeemed {
		return reject(ReasonExceededUsageLimit)
	}
	if p.GlobalLimit != nil && f.GlobalUsed >= *p.GlobalLimit {
		return reject(ReasonExceededGlobalLimit)
	}
	if !namePattern.MatchString(p.Name) {
		return reject(ReasonInvalidFormat)
	}
	if f.ActivePromotionName != "" && f.ActivePromotionName == p.Name {
		return reject(ReasonConflictWithActiveCoupon)
	}
	if !p.ActiveAt(f.Now) {
		return rejectNamed(ReasonExpired, p)
	}
	if p.MinSpend != nil && f.Subtotal < *p.MinSpend {
		return rejectNamed(ReasonMinSpendNotMet, p)
	}
	if reason, ok := checkEligibility(p, f.Lines); !ok {
		return rejectNamed(reason, p)
	}

	switch p.Kind {
	case KindFreeDelivery:
		return Result{Valid: true, FreeDelivery: true, PromotionName: p.Name}
	case KindFixed, KindPercentage:
		return Result{Valid: true, Discount: ComputeDiscount(p, f.Subtotal), PromotionName: p.Name}
	default:
		return reject(ReasonUnknown)
	}
}

// checkEligibility requires at least one line matching the eligible products
// or the eligible categories when either restriction is declared.
func checkEligibility(p *Promotion, lines []pricing.Line) (Reason, bool) {
	byProduct := len(p.EligibleProductIDs) > 0
	byCategory := len(p.EligibleCategoryIDs) > 0
	if !byProduct && !byCategory {
		return "", true
	}
	reason := ReasonNotEligibleProduct
	if byCategory && !byProduct {
		reason = ReasonNotEligibleCategory
	}

	products := toSet(p.EligibleProductIDs)
	categories := toSet(p.EligibleCategoryIDs)
	for _, l := range lines {
		if _, ok := products[l.ProductID]; ok && l.ProductID != "" {
			return "", true
		}
		if _, ok := categories[l.Category]; ok && l.Category != "" {
			return "", true
		}
	}
	return reason, false
}

// ComputeDiscount applies only the kind-based arithmetic: no eligibility,
// limit or date checks. Used for previews.
func ComputeDiscount(p *Promotion, subtotal pricing.Money) pricing.Money {
	if p == nil || subtotal <= 0 {
		return 0
	}
	sub := toDecimal(subtotal)
	var discount decimal.Decimal
	switch p.Kind {
	case KindFixed:
		discount = p.Terms.Amount.Shift(2)
	case KindPercentage:
		discount = sub.Mul(p.Terms.Amount).Div(decimal.NewFromInt(100))
		if p.Terms.Cap != nil {
			discount = decimal.Min(discount, p.Terms.Cap.Shift(2))
		}
		if p.MaxDiscountCap != nil {
			discount = decimal.Min(discount, toDecimal(*p.MaxDiscountCap))
		}
	default:
		return 0
	}
	discount = decimal.Min(discount, sub)
	if discount.IsNegative() {
		return 0
	}
	return discount.Round(0).IntPart()
}

// EffectiveDelivery zeroes the delivery fee for free-delivery promotions.
func EffectiveDelivery(p *Promotion, baseDelivery pricing.Money) pricing.Money {
	if p != nil && p.Kind == KindFreeDelivery {
		return 0
	}
	return baseDelivery
}

func toDecimal(m pricing.Money) decimal.Decimal {
	return decimal.NewFromInt(m)
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
