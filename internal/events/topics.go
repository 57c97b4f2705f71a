package events

// Topic constants for domain events emitted by the engine.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderPaid          = "order.paid"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderCompleted     = "order.completed"
	TopicOrderUpdated       = "order.updated"
	TopicRefundCreated      = "refund.created"
	TopicPaymentFailed      = "payment.failed"
	TopicCouponRedeemed     = "coupon.redeemed"
	TopicStockHoldReleased  = "stock.hold_released"
)

// DefaultTopics returns the topics published to the message broker.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatusChanged,
		TopicOrderPaid,
		TopicOrderCancelled,
		TopicOrderCompleted,
		TopicOrderUpdated,
		TopicRefundCreated,
		TopicPaymentFailed,
		TopicCouponRedeemed,
		TopicStockHoldReleased,
	}
}

// IsKnown reports whether topic is one of DefaultTopics.
func IsKnown(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
