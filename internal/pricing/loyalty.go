package pricing

const (
	// PointsPerBaht is the redemption rate: 10 points are worth 1 baht.
	PointsPerBaht int64 = 10
	// BahtPerEarnedPoint is the earn rate: 1 point per 100 baht charged.
	BahtPerEarnedPoint int64 = 100
)

// PointsToBaht converts points into whole baht, flooring any remainder below 10 points.
func PointsToBaht(points int64) Money {
	if points <= 0 {
		return 0
	}
	return Baht(points / PointsPerBaht)
}

// BahtToPoints converts whole baht into points.
func BahtToPoints(baht int64) int64 {
	return baht * PointsPerBaht
}

// PointsEarnedFrom returns the points credited for the final charged amount.
func PointsEarnedFrom(finalCharge Money) int64 {
	return WholeBaht(finalCharge) / BahtPerEarnedPoint
}

// NormalizeRedemption clamps a redemption request against the customer's
// balance and the amount still owed, then snaps it down to a multiple of 10 so
// the baht conversion has no remainder.
func NormalizeRedemption(requested, balance int64, payableCap Money) int64 {
	if payableCap <= 0 || requested <= 0 || balance <= 0 {
		return 0
	}
	clamped := requested
	if clamped > balance {
		clamped = balance
	}
	if maxByAmount := BahtToPoints(WholeBaht(payableCap)); clamped > maxByAmount {
		clamped = maxByAmount
	}
	return clamped - clamped%PointsPerBaht
}
