package events

// Topic constants for domain events emitted by the checkout engine.
const (
	TopicCheckoutCompleted = "checkout.completed"
	TopicPromotionRedeemed = "promotion.redeemed"
	TopicStockShortage     = "stock.shortage"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutCompleted,
		TopicPromotionRedeemed,
		TopicStockShortage,
	}
}
