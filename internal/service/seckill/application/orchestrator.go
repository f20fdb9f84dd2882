// internal/service/seckill/application/orchestrator.go
package application

import (
	"context"
	"fmt"
	"time"

	"flashmall/internal/pkg/logger"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReserveCommand is the caller-validated input of a reservation attempt.
// Quantity is typically fixed at 1 for flash sales.
type ReserveCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	IsVIP     bool
}

// ReservationTicket is what a successful reservation returns: the order will
// materialize asynchronously under TaskRef.
type ReservationTicket struct {
	TaskRef   string `json:"taskRef"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// SeckillOrchestrator runs on the request path: admission rule, participation
// guard, ledger reservation, durable outbox write. Everything after the ledger
// grant compensates on failure, otherwise stock would be stranded without a
// corresponding order.
type SeckillOrchestrator struct {
	guard   port.ParticipationGuard
	ledger  port.InventoryLedger
	catalog port.ProductCatalog
	outbox  domain.TaskOutbox
	rules   port.RuleEngine
	tracer  trace.Tracer
}

func NewSeckillOrchestrator(
	guard port.ParticipationGuard,
	ledger port.InventoryLedger,
	catalog port.ProductCatalog,
	outbox domain.TaskOutbox,
	rules port.RuleEngine,
	tracer trace.Tracer,
) *SeckillOrchestrator {
	return &SeckillOrchestrator{
		guard:   guard,
		ledger:  ledger,
		catalog: catalog,
		outbox:  outbox,
		rules:   rules,
		tracer:  tracer,
	}
}

// Reserve attempts to admit one buyer. Outcomes: a ticket, or
// ErrNotEligible / ErrDuplicateParticipation / InsufficientStockError as
// definitive denials, or a transient error the caller may retry.
func (s *SeckillOrchestrator) Reserve(ctx context.Context, cmd ReserveCommand) (*ReservationTicket, error) {
	ctx, span := s.tracer.Start(ctx, "seckill.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("seckill.product.id", cmd.ProductID),
		attribute.String("user.id", cmd.UserID),
		attribute.Int("seckill.quantity", cmd.Quantity),
	)

	if cmd.UserID == "" || cmd.ProductID == "" || cmd.Quantity <= 0 {
		return nil, fmt.Errorf("invalid reserve command: user=%q product=%q quantity=%d", cmd.UserID, cmd.ProductID, cmd.Quantity)
	}

	product, err := s.catalog.FindByID(ctx, cmd.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if product.PurchaseRule != "" {
		ok, err := s.rules.Evaluate(product.PurchaseRule, port.Fact{
			UserID:   cmd.UserID,
			Quantity: cmd.Quantity,
			IsVIP:    cmd.IsVIP,
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to evaluate admission rule: %w", err)
		}
		if !ok {
			span.AddEvent("Admission rule rejected user.")
			return nil, domain.ErrNotEligible
		}
	}

	// The guard is the first gate: holding it is the proof of first
	// participation, so two racing requests of one user cannot both pass.
	acquired, err := s.guard.TryAcquire(ctx, cmd.UserID, cmd.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !acquired {
		span.AddEvent("Seckill failed: user already participated.")
		return nil, domain.ErrDuplicateParticipation
	}

	result, err := s.ledger.Reserve(ctx, cmd.ProductID, cmd.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Ledger unavailable")
		s.releaseGuard(ctx, cmd.UserID, cmd.ProductID)
		return nil, err
	}
	if result != port.ReserveGranted {
		s.releaseGuard(ctx, cmd.UserID, cmd.ProductID)
		remaining, _ := s.ledger.Remaining(ctx, cmd.ProductID)
		span.AddEvent("Seckill failed: product sold out.")
		return nil, &domain.InsufficientStockError{
			ProductID:   cmd.ProductID,
			ProductName: product.Name,
			Remaining:   remaining,
		}
	}

	orderNo := domain.NewOrderNo(cmd.UserID)
	task, err := domain.NewSeckillTask(orderNo, cmd.UserID, cmd.ProductID, cmd.Quantity, OrderCreationTopic)
	if err != nil {
		s.compensate(ctx, cmd)
		return nil, err
	}
	if err := s.outbox.Create(ctx, task); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Outbox write failed")
		s.compensate(ctx, cmd)
		return nil, fmt.Errorf("failed to persist seckill task: %w", err)
	}

	span.AddEvent("Reservation confirmed, task queued for dispatch.")
	logger.Ctx(ctx).Info().
		Str("order_no", orderNo).
		Str("product_id", cmd.ProductID).
		Str("user_id", cmd.UserID).
		Msg("Seckill reservation granted")

	return &ReservationTicket{TaskRef: orderNo, ProductID: cmd.ProductID, Quantity: cmd.Quantity}, nil
}

// compensate undoes a granted reservation that could not reach the outbox.
// Idempotent: the ledger release adds back exactly the reserved quantity once
// and the guard delete is a no-op when already gone. Runs detached from the
// request's cancellation, because abandoning it strands inventory. When the
// in-process retries cannot reach the ledger, the release is persisted as an
// outbox task and the dispatcher carries it until it lands.
func (s *SeckillOrchestrator) compensate(ctx context.Context, cmd ReserveCommand) {
	ctx = context.WithoutCancel(ctx)
	// One release id covers the in-process attempt and the durable fallback,
	// so the credit cannot land twice.
	releaseID := uuid.NewString()
	if err := withRetry(ctx, 3, 100*time.Millisecond, func(ctx context.Context) error {
		return s.ledger.ReleaseOnce(ctx, releaseID, cmd.ProductID, cmd.Quantity)
	}); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("product_id", cmd.ProductID).
			Int("quantity", cmd.Quantity).
			Msg("Ledger unreachable, falling back to durable stock release")
		enqueueStockRelease(ctx, s.outbox, releaseID, cmd.ProductID, cmd.Quantity)
	}
	s.releaseGuard(ctx, cmd.UserID, cmd.ProductID)
}

// enqueueStockRelease persists a ledger-release intent for the dispatcher to
// deliver. Only when even the outbox write fails is the stock truly stranded.
func enqueueStockRelease(ctx context.Context, outbox domain.TaskOutbox, releaseID, productID string, quantity int) {
	task, err := domain.NewStockReleaseTask(releaseID, productID, quantity, StockReleaseTopic)
	if err == nil {
		err = outbox.Create(ctx, task)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("release_id", releaseID).
			Str("product_id", productID).
			Int("quantity", quantity).
			Msg("🚨 CRITICAL: failed to persist stock release, inventory stranded")
		return
	}
	logger.Ctx(ctx).Info().
		Str("release_id", releaseID).
		Str("product_id", productID).
		Msg("Stock release queued for dispatch")
}

func (s *SeckillOrchestrator) releaseGuard(ctx context.Context, userID, productID string) {
	ctx = context.WithoutCancel(ctx)
	if err := withRetry(ctx, 3, 100*time.Millisecond, func(ctx context.Context) error {
		return s.guard.Release(ctx, userID, productID)
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("user_id", userID).
			Str("product_id", productID).
			Msg("🚨 CRITICAL: failed to release participation marker, user blocked until it expires")
	}
}
