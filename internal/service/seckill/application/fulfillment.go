// internal/service/seckill/application/fulfillment.go
package application

import (
	"context"
	"errors"
	"fmt"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FulfillmentService turns a delivered seckill task into exactly one durable
// order. Idempotency comes from the (consumer, orderNo) unique constraint; the
// order, its items, the relational stock decrement and the expiry intent all
// commit in one transaction inside the order store, so a retry after any
// failure either replays cleanly or lands on the duplicate record.
type FulfillmentService struct {
	orders     domain.OrderStore
	catalog    port.ProductCatalog
	notifier   port.NotificationProducer
	delayTopic string // delay level carrying the payment window
	tracer     trace.Tracer
}

func NewFulfillmentService(
	orders domain.OrderStore,
	catalog port.ProductCatalog,
	notifier port.NotificationProducer,
	delayTopic string,
	tracer trace.Tracer,
) *FulfillmentService {
	return &FulfillmentService{
		orders:     orders,
		catalog:    catalog,
		notifier:   notifier,
		delayTopic: delayTopic,
		tracer:     tracer,
	}
}

// HandleTask processes one at-least-once delivered task payload.
// ErrMalformedPayload and ErrProductNotFound are permanent (poison); a
// duplicate is absorbed silently; everything else is transient and may be
// redelivered.
func (s *FulfillmentService) HandleTask(ctx context.Context, payload *domain.SeckillTaskPayload) error {
	ctx, span := s.tracer.Start(ctx, "seckill.FulfillTask", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if err := payload.Validate(); err != nil {
		span.SetStatus(codes.Error, "Malformed task payload")
		return err
	}
	span.SetAttributes(
		attribute.String("order.no", payload.OrderNo),
		attribute.String("seckill.product.id", payload.ProductID),
		attribute.String("user.id", payload.UserID),
	)

	// Authoritative product data at consumption time, not from the original
	// request, so price/name changes between reservation and fulfillment win.
	product, err := s.catalog.FindByID(ctx, payload.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return fmt.Errorf("%w: product %s vanished from catalog", domain.ErrMalformedPayload, payload.ProductID)
		}
		span.RecordError(err)
		return err
	}

	order, err := domain.NewPendingPaymentOrder(payload.OrderNo, payload.UserID, []domain.OrderItem{{
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductImage: product.Image,
		Price:        product.Price,
		Quantity:     payload.Quantity,
	}})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	expiryTask, err := domain.NewExpiryTask(order, s.delayTopic, OrderExpiryTopic)
	if err != nil {
		return err
	}

	if err := s.orders.CreateFromTask(ctx, FulfillmentConsumer, order, expiryTask); err != nil {
		if errors.Is(err, domain.ErrDuplicateTask) {
			span.AddEvent("Duplicate delivery detected, discarding.")
			logger.Ctx(ctx).Info().Str("order_no", payload.OrderNo).Msg("Task already processed, acknowledging duplicate")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order persistence failed")
		return err
	}

	span.AddEvent("Order persisted, payment expiry scheduled.")
	logger.Ctx(ctx).Info().
		Str("order_no", order.OrderNo).
		Str("user_id", order.UserID).
		Float64("total_amount", order.TotalAmount).
		Msg("Order created, pending payment")

	// Best effort past this point; the order is durable.
	if err := s.notifier.SendOrderCreated(ctx, order); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_no", order.OrderNo).Msg("Failed to queue order-created notification")
	}
	return nil
}
