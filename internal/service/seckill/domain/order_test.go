// internal/service/seckill/domain/order_test.go
package domain

import (
	"strings"
	"testing"
)

func testItems() []OrderItem {
	return []OrderItem{
		{ProductID: "p-1", ProductName: "Widget", Price: 19.99, Quantity: 2},
		{ProductID: "p-2", ProductName: "Gadget", Price: 5.00, Quantity: 1},
	}
}

func TestNewPendingPaymentOrder(t *testing.T) {
	order, err := NewPendingPaymentOrder("ord-1", "user-1", testItems())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != StatePendingPayment {
		t.Errorf("status = %s, want %s", order.Status, StatePendingPayment)
	}
	want := 19.99*2 + 5.00
	if order.TotalAmount != want {
		t.Errorf("total = %v, want %v", order.TotalAmount, want)
	}
}

func TestNewPendingPaymentOrderRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		orderNo string
		userID  string
		items   []OrderItem
	}{
		{"empty order no", "", "user-1", testItems()},
		{"empty user", "ord-1", "", testItems()},
		{"no items", "ord-1", "user-1", nil},
		{"zero quantity", "ord-1", "user-1", []OrderItem{{ProductID: "p-1", Quantity: 0}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPendingPaymentOrder(tc.orderNo, tc.userID, tc.items); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestOrderCancelOnlyWhenPending(t *testing.T) {
	order, _ := NewPendingPaymentOrder("ord-1", "user-1", testItems())
	if err := order.Cancel(); err != nil {
		t.Fatalf("cancel pending order: %v", err)
	}
	if order.Status != StateCancelled {
		t.Errorf("status = %s, want %s", order.Status, StateCancelled)
	}
	// A second cancel must be refused; the caller treats that as handled.
	if err := order.Cancel(); err == nil {
		t.Error("expected error cancelling a cancelled order")
	}
}

func TestOrderPay(t *testing.T) {
	order, _ := NewPendingPaymentOrder("ord-1", "user-1", testItems())
	if err := order.Pay(); err != nil {
		t.Fatalf("pay pending order: %v", err)
	}
	if order.Status != StatePaid {
		t.Errorf("status = %s, want %s", order.Status, StatePaid)
	}
	if err := order.Cancel(); err == nil {
		t.Error("expected error cancelling a paid order")
	}
}

func TestNewOrderNo(t *testing.T) {
	a := NewOrderNo("user-12345")
	b := NewOrderNo("user-12345")
	if a == b {
		t.Error("two generated order numbers are identical")
	}
	// timestamp(14) + user suffix(4) + entropy(8)
	if len(a) != 26 {
		t.Errorf("len = %d, want 26 (%s)", len(a), a)
	}
	if !strings.Contains(a, "2345") {
		t.Errorf("order no %s missing user suffix", a)
	}
}

func TestNewOrderNoShortUser(t *testing.T) {
	n := NewOrderNo("u1")
	if len(n) != 14+2+8 {
		t.Errorf("len = %d, want %d (%s)", len(n), 14+2+8, n)
	}
}
