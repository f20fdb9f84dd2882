// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"flashmall/internal/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// FailureHandler implements the negative-ack path for at-least-once consumers.
// A failed message is republished to its source topic with an incremented retry
// counter (requeue); once the counter exceeds the limit, or the failure is marked
// permanent, the message is moved to the dead-letter topic instead. Consumers
// always commit the original offset after handing a message over, so redelivery
// is driven entirely by the republish.
type FailureHandler struct {
	retryWriter *kafka.Writer // addressed by msg.Topic, no fixed topic
	dltWriter   *kafka.Writer
	maxRetries  int
}

// Permanent wraps an error to mark the message as poison: no amount of
// redelivery fixes it, so it goes straight to the dead-letter topic.
type Permanent struct{ Err error }

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

func NewFailureHandler(brokers []string, dltTopic string, maxRetries int) *FailureHandler {
	return &FailureHandler{
		retryWriter: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		dltWriter:  NewKafkaWriter(brokers, dltTopic),
		maxRetries: maxRetries,
	}
}

// Handle routes a failed message to the retry path or the dead-letter topic.
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	retries := RetryCount(msg.Headers)

	if _, permanent := cause.(Permanent); permanent || retries >= h.maxRetries {
		h.moveToDeadLetter(ctx, msg, cause, retries)
		return
	}

	requeue := kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: SetHeader(msg.Headers, HeaderRetryCount, strconv.Itoa(retries+1)),
	}
	if err := h.retryWriter.WriteMessages(ctx, requeue); err != nil {
		// The original offset is about to be committed by the caller; losing the
		// requeue would drop the message, so fall back to the DLT.
		logger.Ctx(ctx).Error().Err(err).Str("topic", msg.Topic).Msg("Failed to requeue message, moving to DLT")
		h.moveToDeadLetter(ctx, msg, cause, retries)
		return
	}
	logger.Ctx(ctx).Warn().
		Err(cause).
		Str("topic", msg.Topic).
		Int("retry", retries+1).
		Msg("Message requeued after processing failure")
}

func (h *FailureHandler) moveToDeadLetter(ctx context.Context, msg kafka.Message, cause error, retries int) {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
			{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
			{Key: HeaderRetryCount, Value: []byte(strconv.Itoa(retries))},
		},
	}
	InjectTraceContext(ctx, &dead.Headers)
	if err := h.dltWriter.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("🚨 CRITICAL: failed to move message to dead-letter topic, message lost")
		return
	}
	logger.Ctx(ctx).Error().Err(cause).
		Str("topic", msg.Topic).
		Int("retries", retries).
		Msg("Message moved to dead-letter topic")
}

// RetryCount reads the retry counter header, 0 when absent or malformed.
func RetryCount(headers []kafka.Header) int {
	v := GetHeader(headers, HeaderRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Close releases the underlying writers.
func (h *FailureHandler) Close() error {
	if err := h.retryWriter.Close(); err != nil {
		return err
	}
	return h.dltWriter.Close()
}
