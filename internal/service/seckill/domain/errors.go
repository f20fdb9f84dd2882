// internal/service/seckill/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateParticipation means the user already holds a reservation for
	// this product in the current sale.
	ErrDuplicateParticipation = errors.New("user has already participated in this seckill")

	// ErrDuplicateTask is the dedup signal of the fulfillment consumer: the
	// idempotency record for this order reference already exists.
	ErrDuplicateTask = errors.New("seckill task was already processed")

	// ErrOrderNotFound is returned by order lookups for unknown references.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProductNotFound is returned by catalog lookups for unknown products.
	ErrProductNotFound = errors.New("product not found")

	// ErrNotEligible means the product's admission rule rejected the user.
	ErrNotEligible = errors.New("user is not eligible for this seckill")

	// ErrMalformedPayload marks a poison message; redelivery cannot fix it.
	ErrMalformedPayload = errors.New("malformed task payload")
)

// InsufficientStockError carries what the client needs to render a definitive
// "sold out" answer instead of retrying a lost race.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Remaining   int64
}

func (e *InsufficientStockError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("insufficient seckill stock for product %s (%s), remaining %d", e.ProductName, e.ProductID, e.Remaining)
	}
	return fmt.Sprintf("insufficient seckill stock for product %s", e.ProductID)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}
