package pricing

import "strings"

// DeliveryTier identifies the delivery speed chosen for a shop.
type DeliveryTier string

const (
	// TierStandard is the default delivery tier.
	TierStandard DeliveryTier = "standard"
	// TierPriority is the faster, more expensive tier.
	TierPriority DeliveryTier = "priority"
)

// ParseTier normalises a tier name. Unknown or empty values resolve to standard.
func ParseTier(v string) DeliveryTier {
	switch DeliveryTier(strings.ToLower(strings.TrimSpace(v))) {
	case TierPriority:
		return TierPriority
	default:
		return TierStandard
	}
}

// DeliverySelection maps a shop id to the tier chosen for it.
type DeliverySelection map[string]DeliveryTier

// FeeSchedule holds the flat fee charged per shop for each tier.
type FeeSchedule struct {
	Standard Money
	Priority Money
}

// DefaultFeeSchedule charges 19.00 for standard and 29.00 for priority delivery.
var DefaultFeeSchedule = FeeSchedule{Standard: 1900, Priority: 2900}

// Fee returns the flat per-shop fee for tier.
func (s FeeSchedule) Fee(tier DeliveryTier) Money {
	if tier == TierPriority {
		return s.Priority
	}
	return s.Standard
}

// ShopGroup collects the lines shipped by a single shop.
type ShopGroup struct {
	ShopID string       `json:"shopId"`
	Tier   DeliveryTier `json:"tier"`
	Fee    Money        `json:"fee"`
	Lines  []Line       `json:"lines"`
}

// DeliveryQuote is the result of aggregating delivery fees over a cart.
type DeliveryQuote struct {
	TotalFee Money       `json:"totalFee"`
	Shops    []ShopGroup `json:"shops"`
}

// Shop returns the group for shopID, if present.
func (q DeliveryQuote) Shop(shopID string) (ShopGroup, bool) {
	for _, g := range q.Shops {
		if g.ShopID == shopID {
			return g, true
		}
	}
	return ShopGroup{}, false
}

// Compute groups lines by shop, in first-seen order, and charges exactly one
// fee per shop regardless of how many lines or units it ships.
func (s FeeSchedule) Compute(lines []Line, selection DeliverySelection) DeliveryQuote {
	quote := DeliveryQuote{Shops: []ShopGroup{}}
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		i, ok := index[l.ShopID]
		if !ok {
			tier := TierStandard
			if chosen, found := selection[l.ShopID]; found {
				tier = ParseTier(string(chosen))
			}
			quote.Shops = append(quote.Shops, ShopGroup{ShopID: l.ShopID, Tier: tier, Fee: s.Fee(tier)})
			i = len(quote.Shops) - 1
			index[l.ShopID] = i
		}
		quote.Shops[i].Lines = append(quote.Shops[i].Lines, l)
	}
	for _, g := range quote.Shops {
		quote.TotalFee += g.Fee
	}
	return quote
}

// ComputeDelivery applies the default fee schedule.
func ComputeDelivery(lines []Line, selection DeliverySelection) DeliveryQuote {
	return DefaultFeeSchedule.Compute(lines, selection)
}
