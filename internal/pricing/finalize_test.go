package pricing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-engine/internal/customer"
)

func TestFinalizeRedeemsAndEarns(t *testing.T) {
	account := customer.Account{ID: "CUST001", LoyaltyPoints: 500, AssignedPromotionIDs: []string{"PROMO001", "PROMO002"}}
	got := Finalize(FinalizeInput{
		Customer:          account,
		PromotionID:       "PROMO001",
		Subtotal:          Baht(1000),
		Discount:          Baht(100),
		EffectiveDelivery: Baht(50),
		RequestedPoints:   200,
	})

	want := Finalization{
		Subtotal:            Baht(1000),
		EffectiveDelivery:   Baht(50),
		Discount:            Baht(100),
		PayableBeforePoints: Baht(950),
		PointsSpent:         200,
		PointsDiscount:      Baht(20),
		FinalTotal:          Baht(930),
		PointsEarned:        9,
		UsedPromotionID:     "PROMO001",
		UpdatedCustomer: customer.Account{
			ID:                   "CUST001",
			LoyaltyPoints:        309,
			AssignedPromotionIDs: []string{"PROMO002"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("finalization mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"PROMO001", "PROMO002"}, account.AssignedPromotionIDs, "input account must not be mutated")
}

func TestFinalizeSnapsRequestedPoints(t *testing.T) {
	got := Finalize(FinalizeInput{
		Customer:        customer.Account{LoyaltyPoints: 10_000},
		Subtotal:        Baht(5000),
		RequestedPoints: 123,
	})
	require.Equal(t, int64(120), got.PointsSpent)
	require.Equal(t, Baht(12), got.PointsDiscount)
	require.Equal(t, Baht(4988), got.FinalTotal)
}

func TestFinalizeDiscountAboveSubtotal(t *testing.T) {
	got := Finalize(FinalizeInput{
		Customer:          customer.Account{LoyaltyPoints: 1000},
		Subtotal:          Baht(80),
		Discount:          Baht(200),
		EffectiveDelivery: Baht(19),
		RequestedPoints:   1000,
	})
	require.Zero(t, got.PayableBeforePoints)
	require.Zero(t, got.PointsSpent)
	require.Zero(t, got.FinalTotal)
	require.Equal(t, int64(1000), got.UpdatedCustomer.LoyaltyPoints)
}

func TestFinalizeClampsNegativeInputs(t *testing.T) {
	got := Finalize(FinalizeInput{
		Customer:          customer.Account{LoyaltyPoints: -30},
		Subtotal:          -100,
		Discount:          -500,
		EffectiveDelivery: -19,
		RequestedPoints:   -10,
	})
	require.Zero(t, got.FinalTotal)
	require.Zero(t, got.PointsSpent)
	require.Zero(t, got.UpdatedCustomer.LoyaltyPoints)
	require.Empty(t, got.UsedPromotionID)
}

func TestFinalizeNeverNegative(t *testing.T) {
	for subtotal := Money(0); subtotal <= Baht(300); subtotal += 3_333 {
		for discount := Money(0); discount <= Baht(400); discount += 5_000 {
			for _, requested := range []int64{0, 15, 999, 100_000} {
				got := Finalize(FinalizeInput{
					Customer:          customer.Account{LoyaltyPoints: 50_000},
					Subtotal:          subtotal,
					Discount:          discount,
					EffectiveDelivery: 1900,
					RequestedPoints:   requested,
				})
				require.GreaterOrEqual(t, got.FinalTotal, Money(0))
				require.GreaterOrEqual(t, got.UpdatedCustomer.LoyaltyPoints, int64(0))
				require.LessOrEqual(t, got.PointsDiscount, got.PayableBeforePoints)
			}
		}
	}
}

func TestComputeFinalPrice(t *testing.T) {
	cases := []struct {
		name                        string
		subtotal, discount, deliver Money
		points                      int64
		want                        Money
	}{
		{"no discounts", Baht(100), 0, Baht(20), 0, Baht(120)},
		{"coupon only", Baht(200), Baht(50), Baht(30), 0, Baht(180)},
		{"points only", Baht(150), 0, Baht(19), 40, Baht(165)},
		{"coupon greater than subtotal", Baht(80), Baht(100), Baht(19), 20, 0},
		{"points capped at payable", Baht(120), Baht(20), Baht(30), 5000, 0},
		{"large values", Baht(1000), Baht(200), Baht(50), 300, Baht(820)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeFinalPrice(tc.subtotal, tc.discount, tc.points, tc.deliver, -1)
			require.Equal(t, tc.want, got.FinalTotal)
		})
	}
}

func TestSubtotal(t *testing.T) {
	lines := []Line{
		{ProductID: "P001", UnitPrice: 119_999, Quantity: 2},
		{ProductID: "P002", UnitPrice: 15_000, Quantity: 1},
		{ProductID: "P003", UnitPrice: 9_900, Quantity: 0},
	}
	require.Equal(t, Money(254_998), Subtotal(lines))
	require.Equal(t, "2549.98", FormatBaht(Subtotal(lines)))
}

func TestFinalizeCarriesTotalDeliveryFee(t *testing.T) {
	got := Finalize(FinalizeInput{
		Customer:          customer.Account{ID: "CUST001"},
		Subtotal:          Baht(500),
		TotalDeliveryFee:  Baht(48),
		EffectiveDelivery: 0,
	})
	require.Equal(t, Baht(48), got.TotalDeliveryFee)
	require.Equal(t, Money(0), got.EffectiveDelivery)
	require.Equal(t, Baht(500), got.FinalTotal)
}
