// internal/service/seckill/domain/order.go
package domain

import (
	"errors"
	"time"
)

// Order is the aggregate written by the fulfillment consumer. Price, name and
// image are captured from the catalog at consumption time, not from the
// original request, so a stale client cannot fix the price.
type Order struct {
	OrderNo     string
	UserID      string
	Status      State
	TotalAmount float64
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	ProductID    string
	ProductName  string
	ProductImage string
	Price        float64
	Quantity     int
}

// NewPendingPaymentOrder builds the order for a granted reservation.
func NewPendingPaymentOrder(orderNo, userID string, items []OrderItem) (*Order, error) {
	if orderNo == "" || userID == "" || len(items) == 0 {
		return nil, errors.New("cannot create order with empty required fields")
	}
	var total float64
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, errors.New("order item quantity must be positive")
		}
		total += item.Price * float64(item.Quantity)
	}
	now := time.Now()
	return &Order{
		OrderNo:     orderNo,
		UserID:      userID,
		Status:      StatePendingPayment,
		TotalAmount: total,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Cancel transitions an unpaid order to CANCELLED. Any other state is refused;
// the expiry path treats that as "already handled".
func (o *Order) Cancel() error {
	if o.Status != StatePendingPayment {
		return errors.New("only pending payment orders can be cancelled")
	}
	o.Status = StateCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// Pay transitions an unpaid order to PAID.
func (o *Order) Pay() error {
	if o.Status != StatePendingPayment {
		return errors.New("only pending payment orders can be paid")
	}
	o.Status = StatePaid
	o.UpdatedAt = time.Now()
	return nil
}
