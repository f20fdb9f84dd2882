// internal/service/seckill/domain/port/inventory.go
package port

import "context"

// ReserveResult is the outcome of a ledger reservation attempt.
type ReserveResult int

const (
	ReserveGranted ReserveResult = iota + 1
	ReserveDenied
	ReserveUnknownProduct
)

// InventoryLedger is the fast-store counter that admits buyers during the sale
// window. Reserve is the single serialization point for stock correctness: the
// read and the decrement execute as one atomic script, never as two calls.
// Store unavailability surfaces as an error, never as a grant.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, quantity int) (ReserveResult, error)

	// Release returns previously reserved quantity; compensation only. Callers
	// must release exactly what they reserved.
	Release(ctx context.Context, productID string, quantity int) error

	// ReleaseOnce is Release with at-most-once effect per releaseID. It backs
	// the durable compensation path, where the same release intent can be
	// delivered any number of times.
	ReleaseOnce(ctx context.Context, releaseID, productID string, quantity int) error

	// Remaining reports the current sellable counter, for sold-out messaging.
	Remaining(ctx context.Context, productID string) (int64, error)

	// Prepare loads the sellable quantity for a product and clears previous
	// participation markers. Admin/ops operation for opening a sale window.
	Prepare(ctx context.Context, productID string, stock int64) error
}

// ParticipationGuard is the one-shot per-(user,product) marker. TryAcquire is
// set-if-absent with a bounded lifetime; acquiring it is the proof of first
// participation and must happen before the ledger reservation.
type ParticipationGuard interface {
	TryAcquire(ctx context.Context, userID, productID string) (bool, error)

	// Release removes the marker so the user can retry after a downstream
	// failure. Removing an absent marker is a no-op.
	Release(ctx context.Context, userID, productID string) error
}
