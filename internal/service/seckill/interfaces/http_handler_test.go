// internal/service/seckill/interfaces/http_handler_test.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flashmall/internal/service/seckill/application"
	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"go.opentelemetry.io/otel"
)

type stubGuard struct{ held map[string]bool }

func (g *stubGuard) TryAcquire(_ context.Context, userID, productID string) (bool, error) {
	k := userID + "/" + productID
	if g.held[k] {
		return false, nil
	}
	if g.held == nil {
		g.held = make(map[string]bool)
	}
	g.held[k] = true
	return true, nil
}

func (g *stubGuard) Release(_ context.Context, userID, productID string) error {
	delete(g.held, userID+"/"+productID)
	return nil
}

type stubLedger struct {
	stock    int64
	reserves int
}

func (l *stubLedger) Reserve(_ context.Context, _ string, quantity int) (port.ReserveResult, error) {
	l.reserves++
	if l.stock < int64(quantity) {
		return port.ReserveDenied, nil
	}
	l.stock -= int64(quantity)
	return port.ReserveGranted, nil
}

func (l *stubLedger) Release(_ context.Context, _ string, quantity int) error {
	l.stock += int64(quantity)
	return nil
}

func (l *stubLedger) ReleaseOnce(_ context.Context, _, _ string, quantity int) error {
	l.stock += int64(quantity)
	return nil
}

func (l *stubLedger) Remaining(_ context.Context, _ string) (int64, error) { return l.stock, nil }

func (l *stubLedger) Prepare(_ context.Context, _ string, stock int64) error {
	l.stock = stock
	return nil
}

type stubCatalog struct{}

func (stubCatalog) FindByID(_ context.Context, productID string) (*domain.Product, error) {
	if productID != "p-1" {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ID: "p-1", Name: "Widget", Price: 9.99, Stock: 100}, nil
}

func (stubCatalog) AdjustStock(_ context.Context, _ string, _ int) error { return nil }

type stubOutbox struct{ tasks []*domain.SeckillTask }

func (o *stubOutbox) Create(_ context.Context, task *domain.SeckillTask) error {
	o.tasks = append(o.tasks, task)
	return nil
}

func (o *stubOutbox) FetchDue(context.Context, time.Time, int) ([]*domain.SeckillTask, error) {
	return nil, nil
}
func (o *stubOutbox) MarkDispatched(context.Context, uint64) error        { return nil }
func (o *stubOutbox) Reschedule(context.Context, uint64, time.Time) error { return nil }

type stubRules struct{}

func (stubRules) Evaluate(string, port.Fact) (bool, error) { return true, nil }

type stubOrderStore struct{}

func (stubOrderStore) CreateFromTask(context.Context, string, *domain.Order, *domain.SeckillTask) error {
	return nil
}

func (stubOrderStore) CancelIfUnpaid(context.Context, string) (*domain.Order, bool, error) {
	return nil, false, domain.ErrOrderNotFound
}

func (stubOrderStore) FindByOrderNo(context.Context, string) (*domain.Order, error) {
	return nil, domain.ErrOrderNotFound
}

func newTestHandler(ledger *stubLedger) *SeckillHandler {
	orch := application.NewSeckillOrchestrator(
		&stubGuard{}, ledger, stubCatalog{}, &stubOutbox{}, stubRules{}, otel.Tracer("test"),
	)
	return NewSeckillHandler(orch, ledger, stubOrderStore{})
}

func postReserve(t *testing.T, h *SeckillHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/seckill/reserve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.reserveHandler(rec, req)
	return rec
}

func TestReserveHandlerGranted(t *testing.T) {
	rec := postReserve(t, newTestHandler(&stubLedger{stock: 5}), `{"userId":"user-1","productId":"p-1","quantity":1}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var ticket application.ReservationTicket
	if err := json.Unmarshal(rec.Body.Bytes(), &ticket); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if ticket.TaskRef == "" {
		t.Error("empty task ref")
	}
}

func TestReserveHandlerSoldOut(t *testing.T) {
	rec := postReserve(t, newTestHandler(&stubLedger{stock: 0}), `{"userId":"user-1","productId":"p-1","quantity":1}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp struct {
		Remaining *int64 `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Remaining == nil || *resp.Remaining != 0 {
		t.Errorf("remaining = %v, want 0", resp.Remaining)
	}
}

func TestReserveHandlerNegativeQuantityIsBadRequest(t *testing.T) {
	ledger := &stubLedger{stock: 5}
	rec := postReserve(t, newTestHandler(ledger), `{"userId":"user-1","productId":"p-1","quantity":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	// The request must be rejected at the edge, never reach the ledger.
	if ledger.reserves != 0 {
		t.Errorf("ledger reserves = %d, want 0", ledger.reserves)
	}
}

func TestReserveHandlerMalformedBodyIsBadRequest(t *testing.T) {
	rec := postReserve(t, newTestHandler(&stubLedger{stock: 5}), `{"userId":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
