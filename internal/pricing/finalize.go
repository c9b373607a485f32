package pricing

import "github.com/noah-isme/checkout-engine/internal/customer"

// FinalizeInput carries everything needed to settle a checkout.
type FinalizeInput struct {
	Customer    customer.Account
	PromotionID string
	Subtotal    Money
	// TotalDeliveryFee is the fee before any free-delivery promotion; it is
	// carried through for reporting only.
	TotalDeliveryFee  Money
	EffectiveDelivery Money
	Discount          Money
	RequestedPoints   int64
}

// Finalization is the derived result of a checkout. It is recomputed on every
// call and never cached.
type Finalization struct {
	Subtotal            Money            `json:"subtotal"`
	TotalDeliveryFee    Money            `json:"totalDeliveryFee"`
	EffectiveDelivery   Money            `json:"effectiveDelivery"`
	Discount            Money            `json:"discount"`
	PayableBeforePoints Money            `json:"payableBeforePoints"`
	PointsSpent         int64            `json:"pointsSpent"`
	PointsDiscount      Money            `json:"pointsDiscount"`
	FinalTotal          Money            `json:"finalTotal"`
	PointsEarned        int64            `json:"pointsEarned"`
	UsedPromotionID     string           `json:"usedPromotionId,omitempty"`
	UpdatedCustomer     customer.Account `json:"updatedCustomer"`
}

// Finalize composes the final total and the customer mutation. The steps run
// in a fixed order because each cap depends on the previous result: points are
// capped by the payable amount after discount, and points are earned on the
// charge left after redemption.
func Finalize(in FinalizeInput) Finalization {
	subtotal := nonNegative(in.Subtotal)
	delivery := nonNegative(in.EffectiveDelivery)
	discount := nonNegative(in.Discount)
	balance := in.Customer.LoyaltyPoints
	if balance < 0 {
		balance = 0
	}

	payable := nonNegative(subtotal + delivery - discount)
	spent := NormalizeRedemption(in.RequestedPoints, balance, payable)
	pointsDiscount := PointsToBaht(spent)
	final := nonNegative(payable - pointsDiscount)
	earned := PointsEarnedFrom(final)

	updated := in.Customer.WithoutPromotion(in.PromotionID)
	updated.LoyaltyPoints = balance - spent + earned
	if updated.LoyaltyPoints < 0 {
		updated.LoyaltyPoints = 0
	}

	return Finalization{
		Subtotal:            subtotal,
		TotalDeliveryFee:    nonNegative(in.TotalDeliveryFee),
		EffectiveDelivery:   delivery,
		Discount:            discount,
		PayableBeforePoints: payable,
		PointsSpent:         spent,
		PointsDiscount:      pointsDiscount,
		FinalTotal:          final,
		PointsEarned:        earned,
		UsedPromotionID:     in.PromotionID,
		UpdatedCustomer:     updated,
	}
}

// PriceBreakdown is a side-effect free preview of the final price.
type PriceBreakdown struct {
	PayableBeforePoints Money `json:"payableBeforePoints"`
	PointsSpent         int64 `json:"pointsSpent"`
	PointsDiscount      Money `json:"pointsDiscount"`
	FinalTotal          Money `json:"finalTotal"`
}

// ComputeFinalPrice mirrors Finalize for previews where no customer mutation
// is wanted. A negative balance means "unbounded".
func ComputeFinalPrice(subtotal, discount Money, requestedPoints int64, delivery Money, balance int64) PriceBreakdown {
	if balance < 0 {
		balance = requestedPoints
	}
	payable := nonNegative(nonNegative(subtotal) + nonNegative(delivery) - nonNegative(discount))
	spent := NormalizeRedemption(requestedPoints, balance, payable)
	pointsDiscount := PointsToBaht(spent)
	return PriceBreakdown{
		PayableBeforePoints: payable,
		PointsSpent:         spent,
		PointsDiscount:      pointsDiscount,
		FinalTotal:          nonNegative(payable - pointsDiscount),
	}
}
