// internal/service/seckill/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"flashmall/internal/pkg/mq"
	"flashmall/internal/service/seckill/domain"

	"github.com/segmentio/kafka-go"
)

// NotificationKafkaAdapter implements port.NotificationProducer.
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// SendOrderCreated queues the "pay within the window" notification.
func (a *NotificationKafkaAdapter) SendOrderCreated(ctx context.Context, order *domain.Order) error {
	return a.send(ctx, order, fmt.Sprintf(
		"Your flash-sale order %s is created and waiting for payment.", order.OrderNo))
}

// SendOrderCancelled queues the payment-timeout notification.
func (a *NotificationKafkaAdapter) SendOrderCancelled(ctx context.Context, order *domain.Order) error {
	return a.send(ctx, order, fmt.Sprintf(
		"Your flash-sale order %s was cancelled because it was not paid in time.", order.OrderNo))
}

func (a *NotificationKafkaAdapter) send(ctx context.Context, order *domain.Order, message string) error {
	event := domain.NotificationEvent{
		UserID:  order.UserID,
		OrderNo: order.OrderNo,
		Message: message,
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(order.UserID), eventBytes)
}

// Close closes the underlying Kafka writer.
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
