// internal/service/seckill/application/expiry.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExpiryService cancels orders whose payment window has elapsed and restores
// the stock on both sides: the relational mirror inside the cancellation
// transaction, the ledger right after it. The status check makes redelivery a
// no-op, so the same event can arrive any number of times.
type ExpiryService struct {
	orders   domain.OrderStore
	ledger   port.InventoryLedger
	outbox   domain.TaskOutbox
	notifier port.NotificationProducer
	tracer   trace.Tracer
}

func NewExpiryService(
	orders domain.OrderStore,
	ledger port.InventoryLedger,
	outbox domain.TaskOutbox,
	notifier port.NotificationProducer,
	tracer trace.Tracer,
) *ExpiryService {
	return &ExpiryService{orders: orders, ledger: ledger, outbox: outbox, notifier: notifier, tracer: tracer}
}

// HandleExpiry processes one delivered expiry event.
func (s *ExpiryService) HandleExpiry(ctx context.Context, event *domain.OrderExpiryEvent) error {
	ctx, span := s.tracer.Start(ctx, "seckill.ExpireOrder", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if event.OrderNo == "" {
		return fmt.Errorf("%w: missing orderNo", domain.ErrMalformedPayload)
	}
	span.SetAttributes(attribute.String("order.no", event.OrderNo))

	order, cancelled, err := s.orders.CancelIfUnpaid(ctx, event.OrderNo)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Already handled elsewhere or an invalid reference; nothing to do.
			span.AddEvent("Order not found, discarding expiry event.")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cancellation transaction failed")
		return err
	}
	if !cancelled {
		span.AddEvent("Order no longer pending payment, no-op.")
		logger.Ctx(ctx).Debug().
			Str("order_no", order.OrderNo).
			Str("status", string(order.Status)).
			Msg("Expiry event for settled order ignored")
		return nil
	}

	// The cancellation and the relational restore are committed; give the
	// sellable quantity back to the ledger. This must not be abandoned, and a
	// requeue would no-op on the already-cancelled order, so it retries here
	// and falls back to a durable release task the dispatcher keeps carrying.
	// The (orderNo, productID) release id is shared by both paths, so the
	// credit lands exactly once however often either is attempted.
	for _, item := range order.Items {
		item := item
		releaseID := order.OrderNo + ":" + item.ProductID
		if err := withRetry(context.WithoutCancel(ctx), 3, 100*time.Millisecond, func(ctx context.Context) error {
			return s.ledger.ReleaseOnce(ctx, releaseID, item.ProductID, item.Quantity)
		}); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Warn().Err(err).
				Str("order_no", order.OrderNo).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("Ledger unreachable, falling back to durable stock release")
			enqueueStockRelease(context.WithoutCancel(ctx), s.outbox, releaseID, item.ProductID, item.Quantity)
		}
	}

	logger.Ctx(ctx).Info().
		Str("order_no", order.OrderNo).
		Msg("Unpaid order cancelled, stock restored")

	if err := s.notifier.SendOrderCancelled(ctx, order); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_no", order.OrderNo).Msg("Failed to queue order-cancelled notification")
	}
	return nil
}
