package pricing

import "fmt"

// Money represents a monetary value stored in minor units (satang).
type Money = int64

// MinorPerBaht is the number of minor units in one baht.
const MinorPerBaht Money = 100

// Baht converts a whole baht amount into minor units.
func Baht(v int64) Money {
	return v * MinorPerBaht
}

// WholeBaht returns the whole-baht part of m, flooring toward zero for non-negative amounts.
func WholeBaht(m Money) int64 {
	if m <= 0 {
		return 0
	}
	return m / MinorPerBaht
}

// FormatBaht renders m as a 2-decimal baht string, e.g. "19.00".
func FormatBaht(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/MinorPerBaht, m%MinorPerBaht)
}

// Line describes a cart line item used for pricing calculation.
type Line struct {
	ProductID string `json:"productId" validate:"required"`
	ShopID    string `json:"shopId" validate:"required"`
	UnitPrice Money  `json:"unitPrice" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Category  string `json:"category"`
}

// Total returns unit price times quantity, or zero for non-positive quantities.
func (l Line) Total() Money {
	if l.Quantity <= 0 || l.UnitPrice <= 0 {
		return 0
	}
	return Money(l.Quantity) * l.UnitPrice
}

// Subtotal sums the line totals before discounts and delivery.
func Subtotal(lines []Line) Money {
	var subtotal Money
	for _, l := range lines {
		subtotal += l.Total()
	}
	return subtotal
}

func nonNegative(m Money) Money {
	if m < 0 {
		return 0
	}
	return m
}
