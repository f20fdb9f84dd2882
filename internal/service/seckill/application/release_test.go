// internal/service/seckill/application/release_test.go
package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"flashmall/internal/service/seckill/domain"

	"go.opentelemetry.io/otel"
)

func TestHandleReleaseRestoresStock(t *testing.T) {
	ledger := &fakeLedger{stock: 3}
	svc := NewStockReleaseService(ledger, otel.Tracer("test"))

	err := svc.HandleRelease(context.Background(), &domain.StockReleasePayload{
		ReleaseID: "rel-1", ProductID: "p-1", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 5 {
		t.Errorf("ledger stock = %d, want 5", got)
	}
}

func TestHandleReleaseDoubleDeliveryCreditsOnce(t *testing.T) {
	ledger := &fakeLedger{stock: 0}
	svc := NewStockReleaseService(ledger, otel.Tracer("test"))

	payload := &domain.StockReleasePayload{ReleaseID: "rel-1", ProductID: "p-1", Quantity: 2}
	if err := svc.HandleRelease(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleRelease(context.Background(), payload); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 2 {
		t.Errorf("ledger stock = %d, redelivery must not double-credit", got)
	}
}

func TestHandleReleaseMissingReleaseIDIsPoison(t *testing.T) {
	svc := NewStockReleaseService(&fakeLedger{}, otel.Tracer("test"))
	err := svc.HandleRelease(context.Background(), &domain.StockReleasePayload{ProductID: "p-1", Quantity: 1})
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestHandleReleaseLedgerFailureIsTransient(t *testing.T) {
	ledger := &fakeLedger{releaseErr: errors.New("redis down")}
	svc := NewStockReleaseService(ledger, otel.Tracer("test"))

	err := svc.HandleRelease(context.Background(), &domain.StockReleasePayload{
		ReleaseID: "rel-1", ProductID: "p-1", Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected a transient error for redelivery")
	}
}
