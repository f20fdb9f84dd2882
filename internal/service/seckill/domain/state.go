// internal/service/seckill/domain/state.go
package domain

// State is the order lifecycle. The seckill pipeline only ever writes
// PENDING_PAYMENT (fulfillment) and PENDING_PAYMENT -> CANCELLED (expiry);
// the remaining transitions belong to the payment and shipping flows.
type State string

const (
	StateCreated        State = "CREATED"
	StatePendingPayment State = "PENDING_PAYMENT"
	StatePaid           State = "PAID"
	StateCancelled      State = "CANCELLED"
	StateShipped        State = "SHIPPED"
	StateCompleted      State = "COMPLETED"
)
