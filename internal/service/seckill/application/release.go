// internal/service/seckill/application/release.go
package application

import (
	"context"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StockReleaseService applies durable ledger-release intents. The ledger's
// per-release markers do the dedup, so redeliveries are harmless and the
// handler needs no relational idempotency record.
type StockReleaseService struct {
	ledger port.InventoryLedger
	tracer trace.Tracer
}

func NewStockReleaseService(ledger port.InventoryLedger, tracer trace.Tracer) *StockReleaseService {
	return &StockReleaseService{ledger: ledger, tracer: tracer}
}

// HandleRelease processes one delivered release intent.
func (s *StockReleaseService) HandleRelease(ctx context.Context, payload *domain.StockReleasePayload) error {
	ctx, span := s.tracer.Start(ctx, "seckill.ReleaseStock", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if err := payload.Validate(); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("seckill.release.id", payload.ReleaseID),
		attribute.String("seckill.product.id", payload.ProductID),
		attribute.Int("seckill.quantity", payload.Quantity),
	)

	if err := s.ledger.ReleaseOnce(ctx, payload.ReleaseID, payload.ProductID, payload.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Ledger release failed")
		return err
	}

	logger.Ctx(ctx).Info().
		Str("release_id", payload.ReleaseID).
		Str("product_id", payload.ProductID).
		Int("quantity", payload.Quantity).
		Msg("✅ Stranded stock restored to ledger")
	return nil
}
