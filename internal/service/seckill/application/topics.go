// internal/service/seckill/application/topics.go
package application

// Topic and consumer names shared by the producer and consumer sides of the
// pipeline.
const (
	OrderCreationTopic = "seckill-order-creation"
	OrderExpiryTopic   = "seckill-order-expiry"
	StockReleaseTopic  = "seckill-stock-release"
	NotificationsTopic = "notifications"
	DeadLetterTopic    = "seckill-dlt"

	// FulfillmentConsumer keys the idempotency ledger; changing it would make
	// every historic message look fresh.
	FulfillmentConsumer = "order-fulfillment"

	// StockReleaseConsumer groups the ledger-release consumers; the ledger's
	// own release markers provide the dedup, not the relational ledger.
	StockReleaseConsumer = "stock-release"
)
