// internal/service/seckill/domain/repository.go
package domain

import (
	"context"
	"time"
)

// TaskOutbox persists broker-delivery intents. Create runs on the reservation
// path; the remaining operations belong to the dispatcher.
type TaskOutbox interface {
	// Create durably stores a PENDING task.
	Create(ctx context.Context, task *SeckillTask) error

	// FetchDue returns PENDING tasks whose next retry time has passed, oldest
	// first, at most limit rows.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*SeckillTask, error)

	// MarkDispatched records a confirmed broker publish. Rows are kept.
	MarkDispatched(ctx context.Context, id uint64) error

	// Reschedule pushes a task's next retry time forward after a failed publish.
	Reschedule(ctx context.Context, id uint64, next time.Time) error
}

// OrderStore owns the two transactional units of the pipeline. Each method is
// a single database transaction; partial persistence is not observable.
type OrderStore interface {
	// CreateFromTask atomically inserts the idempotency record for
	// (consumerName, order.OrderNo), the order with its items, the relational
	// stock decrement mirroring the ledger, and the expiry outbox intent.
	// A duplicate idempotency record aborts the transaction with
	// ErrDuplicateTask.
	CreateFromTask(ctx context.Context, consumerName string, order *Order, expiryTask *SeckillTask) error

	// CancelIfUnpaid loads the order and, when it is still PENDING_PAYMENT,
	// atomically cancels it and restores the relational stock of every item.
	// Returns (order, true) when this call performed the cancellation,
	// (order, false) when the order exists in any other state, and
	// ErrOrderNotFound for unknown references.
	CancelIfUnpaid(ctx context.Context, orderNo string) (*Order, bool, error)

	// FindByOrderNo loads an order with its items.
	FindByOrderNo(ctx context.Context, orderNo string) (*Order, error)
}
