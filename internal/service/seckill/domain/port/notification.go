// internal/service/seckill/domain/port/notification.go
package port

import (
	"context"

	"flashmall/internal/service/seckill/domain"
)

// NotificationProducer publishes user-facing events to the notifications
// channel. Both calls are best effort: the pipeline never fails an order
// because a notification could not be queued.
type NotificationProducer interface {
	SendOrderCreated(ctx context.Context, order *domain.Order) error
	SendOrderCancelled(ctx context.Context, order *domain.Order) error
}
