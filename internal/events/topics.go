package events

// Topic constants for pricing events.
const (
	TopicOrderRecalculated = "pricing.order.recalculated"
	TopicOrderFailed       = "pricing.order.failed"
	TopicDiscountApplied   = "pricing.discount.applied"
	TopicDiscountRemoved   = "pricing.discount.removed"
)

// DefaultTopics returns every topic the service emits.
func DefaultTopics() []string {
	return []string{
		TopicOrderRecalculated,
		TopicOrderFailed,
		TopicDiscountApplied,
		TopicDiscountRemoved,
	}
}
