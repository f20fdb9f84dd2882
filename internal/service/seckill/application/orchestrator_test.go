// internal/service/seckill/application/orchestrator_test.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flashmall/internal/service/seckill/domain"
	"flashmall/internal/service/seckill/domain/port"

	"go.opentelemetry.io/otel"
)

type fakeGuard struct {
	mu         sync.Mutex
	held       map[string]bool
	acquireErr error
	releases   int
}

func newFakeGuard() *fakeGuard { return &fakeGuard{held: make(map[string]bool)} }

func (g *fakeGuard) key(userID, productID string) string { return userID + "/" + productID }

func (g *fakeGuard) TryAcquire(_ context.Context, userID, productID string) (bool, error) {
	if g.acquireErr != nil {
		return false, g.acquireErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	k := g.key(userID, productID)
	if g.held[k] {
		return false, nil
	}
	g.held[k] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, userID, productID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, g.key(userID, productID))
	g.releases++
	return nil
}

type fakeLedger struct {
	stock      int64
	reserveErr error
	releaseErr error
	released   int64

	mu       sync.Mutex
	credited map[string]bool
}

func (l *fakeLedger) Reserve(_ context.Context, _ string, quantity int) (port.ReserveResult, error) {
	if l.reserveErr != nil {
		return 0, l.reserveErr
	}
	for {
		cur := atomic.LoadInt64(&l.stock)
		if cur < int64(quantity) {
			return port.ReserveDenied, nil
		}
		if atomic.CompareAndSwapInt64(&l.stock, cur, cur-int64(quantity)) {
			return port.ReserveGranted, nil
		}
	}
}

func (l *fakeLedger) Release(_ context.Context, _ string, quantity int) error {
	if l.releaseErr != nil {
		return l.releaseErr
	}
	atomic.AddInt64(&l.stock, int64(quantity))
	atomic.AddInt64(&l.released, int64(quantity))
	return nil
}

func (l *fakeLedger) ReleaseOnce(_ context.Context, releaseID, _ string, quantity int) error {
	if l.releaseErr != nil {
		return l.releaseErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.credited == nil {
		l.credited = make(map[string]bool)
	}
	if l.credited[releaseID] {
		return nil
	}
	l.credited[releaseID] = true
	atomic.AddInt64(&l.stock, int64(quantity))
	atomic.AddInt64(&l.released, int64(quantity))
	return nil
}

func (l *fakeLedger) Remaining(_ context.Context, _ string) (int64, error) {
	return atomic.LoadInt64(&l.stock), nil
}

func (l *fakeLedger) Prepare(_ context.Context, _ string, stock int64) error {
	atomic.StoreInt64(&l.stock, stock)
	return nil
}

type fakeCatalog struct {
	products map[string]*domain.Product
}

func (c *fakeCatalog) FindByID(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := c.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (c *fakeCatalog) AdjustStock(_ context.Context, _ string, _ int) error { return nil }

type fakeOutbox struct {
	mu        sync.Mutex
	tasks     []*domain.SeckillTask
	createErr error
	failTopic string
}

func (o *fakeOutbox) Create(_ context.Context, task *domain.SeckillTask) error {
	if o.createErr != nil {
		return o.createErr
	}
	if o.failTopic != "" && task.Topic == o.failTopic {
		return errors.New("outbox write refused for " + task.Topic)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	task.ID = uint64(len(o.tasks) + 1)
	o.tasks = append(o.tasks, task)
	return nil
}

func (o *fakeOutbox) FetchDue(_ context.Context, _ time.Time, _ int) ([]*domain.SeckillTask, error) {
	return nil, nil
}
func (o *fakeOutbox) MarkDispatched(_ context.Context, _ uint64) error    { return nil }
func (o *fakeOutbox) Reschedule(_ context.Context, _ uint64, _ time.Time) error { return nil }

type fakeRules struct {
	allow bool
	err   error
}

func (r *fakeRules) Evaluate(_ string, _ port.Fact) (bool, error) { return r.allow, r.err }

func catalogWith(rule string) *fakeCatalog {
	return &fakeCatalog{products: map[string]*domain.Product{
		"p-1": {ID: "p-1", Name: "Widget", Price: 9.99, Stock: 100, PurchaseRule: rule},
	}}
}

func newTestOrchestrator(guard *fakeGuard, ledger *fakeLedger, catalog *fakeCatalog, outbox *fakeOutbox, rules *fakeRules) *SeckillOrchestrator {
	return NewSeckillOrchestrator(guard, ledger, catalog, outbox, rules, otel.Tracer("test"))
}

func TestReserveSuccess(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{stock: 10}
	outbox := &fakeOutbox{}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), outbox, &fakeRules{allow: true})

	ticket, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.TaskRef == "" {
		t.Error("empty task ref")
	}
	if len(outbox.tasks) != 1 {
		t.Fatalf("outbox rows = %d, want 1", len(outbox.tasks))
	}
	if outbox.tasks[0].Topic != OrderCreationTopic {
		t.Errorf("task topic = %s", outbox.tasks[0].Topic)
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 9 {
		t.Errorf("ledger stock = %d, want 9", got)
	}
}

func TestReserveDuplicateParticipation(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{stock: 10}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), &fakeOutbox{}, &fakeRules{allow: true})

	cmd := ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1}
	if _, err := orch.Reserve(context.Background(), cmd); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	_, err := orch.Reserve(context.Background(), cmd)
	if !errors.Is(err, domain.ErrDuplicateParticipation) {
		t.Errorf("err = %v, want ErrDuplicateParticipation", err)
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 9 {
		t.Errorf("ledger stock = %d, duplicate must not decrement", got)
	}
}

func TestReserveSoldOut(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{stock: 0}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), &fakeOutbox{}, &fakeRules{allow: true})

	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if stockErr.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", stockErr.Remaining)
	}
	// The guard must be released so the user is not locked out of a sale they
	// never got into.
	if guard.releases != 1 {
		t.Errorf("guard releases = %d, want 1", guard.releases)
	}
}

func TestReserveLedgerUnavailable(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{reserveErr: errors.New("redis down")}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), &fakeOutbox{}, &fakeRules{allow: true})

	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	if err == nil || domain.IsInsufficientStock(err) {
		t.Fatalf("err = %v, want a transient error, never a denial", err)
	}
	if guard.releases != 1 {
		t.Errorf("guard releases = %d, want 1", guard.releases)
	}
}

func TestReserveNotEligible(t *testing.T) {
	guard := newFakeGuard()
	orch := newTestOrchestrator(guard, &fakeLedger{stock: 10}, catalogWith(`is_vip == true`), &fakeOutbox{}, &fakeRules{allow: false})

	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	if !errors.Is(err, domain.ErrNotEligible) {
		t.Errorf("err = %v, want ErrNotEligible", err)
	}
	if len(guard.held) != 0 {
		t.Error("guard acquired before admission rule passed")
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	orch := newTestOrchestrator(newFakeGuard(), &fakeLedger{stock: 10}, catalogWith(""), &fakeOutbox{}, &fakeRules{allow: true})
	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "nope", Quantity: 1})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("err = %v, want ErrProductNotFound", err)
	}
}

func TestReserveOutboxFailureCompensates(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{stock: 10}
	outbox := &fakeOutbox{createErr: errors.New("mysql down")}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), outbox, &fakeRules{allow: true})

	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 10 {
		t.Errorf("ledger stock = %d, reserved quantity not compensated", got)
	}
	if len(guard.held) != 0 {
		t.Error("guard still held after compensation")
	}
}

func TestReserveLedgerDownQueuesDurableRelease(t *testing.T) {
	guard := newFakeGuard()
	ledger := &fakeLedger{stock: 10, releaseErr: errors.New("redis down")}
	// The creation-task write fails, forcing compensation; the ledger is also
	// unreachable, so the release must land as a durable outbox row instead of
	// being abandoned.
	outbox := &fakeOutbox{failTopic: OrderCreationTopic}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), outbox, &fakeRules{allow: true})

	_, err := orch.Reserve(context.Background(), ReserveCommand{UserID: "user-1", ProductID: "p-1", Quantity: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(outbox.tasks) != 1 {
		t.Fatalf("outbox rows = %d, want 1 durable release", len(outbox.tasks))
	}
	task := outbox.tasks[0]
	if task.Topic != StockReleaseTopic {
		t.Errorf("task topic = %s, want %s", task.Topic, StockReleaseTopic)
	}
	var payload domain.StockReleasePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("bad release payload: %v", err)
	}
	if payload.ReleaseID == "" {
		t.Error("release payload missing release id")
	}
	if payload.ProductID != "p-1" || payload.Quantity != 1 {
		t.Errorf("release payload = %+v", payload)
	}
	if len(guard.held) != 0 {
		t.Error("guard still held after compensation")
	}
}

func TestReserveNoOversellUnderContention(t *testing.T) {
	const stock = 5
	const buyers = 40

	guard := newFakeGuard()
	ledger := &fakeLedger{stock: stock}
	outbox := &fakeOutbox{}
	orch := newTestOrchestrator(guard, ledger, catalogWith(""), outbox, &fakeRules{allow: true})

	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.Reserve(context.Background(), ReserveCommand{
				UserID:    fmt.Sprintf("user-%d", i),
				ProductID: "p-1",
				Quantity:  1,
			})
			if err == nil {
				atomic.AddInt64(&granted, 1)
			} else if !domain.IsInsufficientStock(err) {
				t.Errorf("buyer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if granted != stock {
		t.Errorf("granted = %d, want exactly %d", granted, stock)
	}
	if got := atomic.LoadInt64(&ledger.stock); got != 0 {
		t.Errorf("ledger stock = %d, want 0", got)
	}
	if len(outbox.tasks) != stock {
		t.Errorf("outbox rows = %d, want %d", len(outbox.tasks), stock)
	}
}
