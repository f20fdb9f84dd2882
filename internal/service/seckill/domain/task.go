// internal/service/seckill/domain/task.go
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus is the outbox row lifecycle. Rows are never deleted; DISPATCHED
// rows remain for audit and replay.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskDispatched TaskStatus = "DISPATCHED"
)

// SeckillTask is a durable outbox row: an intent to deliver one message to the
// broker. Both the order-creation handoff and the payment-expiry intent use it,
// differing only in topic and headers.
type SeckillTask struct {
	ID            uint64
	OrderNo       string
	UserID        string
	ProductID     string
	Quantity      int
	Topic         string            // broker routing target
	Headers       map[string]string // extra message headers (delay routing)
	Status        TaskStatus
	NextRetryTime time.Time
	Payload       []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SeckillTaskPayload is the wire contract between the orchestrator and the
// fulfillment consumer.
type SeckillTaskPayload struct {
	OrderNo   string    `json:"orderNo"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate rejects structurally invalid payloads outright; a message failing
// here is poison and must not be retried.
func (p *SeckillTaskPayload) Validate() error {
	switch {
	case p.OrderNo == "":
		return fmt.Errorf("%w: missing orderNo", ErrMalformedPayload)
	case p.UserID == "":
		return fmt.Errorf("%w: missing userId", ErrMalformedPayload)
	case p.ProductID == "":
		return fmt.Errorf("%w: missing productId", ErrMalformedPayload)
	case p.Quantity <= 0:
		return fmt.Errorf("%w: non-positive quantity", ErrMalformedPayload)
	}
	return nil
}

// StockReleasePayload is the wire contract of a durable ledger-release intent:
// the fallback taken when an in-process compensation cannot reach the ledger.
// ReleaseID identifies the intent, so redeliveries credit the stock only once.
type StockReleasePayload struct {
	ReleaseID string    `json:"releaseId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *StockReleasePayload) Validate() error {
	switch {
	case p.ReleaseID == "":
		return fmt.Errorf("%w: missing releaseId", ErrMalformedPayload)
	case p.ProductID == "":
		return fmt.Errorf("%w: missing productId", ErrMalformedPayload)
	case p.Quantity <= 0:
		return fmt.Errorf("%w: non-positive quantity", ErrMalformedPayload)
	}
	return nil
}

// NewSeckillTask builds the order-creation outbox row for a granted
// reservation. It becomes dispatchable immediately.
func NewSeckillTask(orderNo, userID, productID string, quantity int, topic string) (*SeckillTask, error) {
	now := time.Now()
	payload := SeckillTaskPayload{
		OrderNo:   orderNo,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return &SeckillTask{
		OrderNo:       orderNo,
		UserID:        userID,
		ProductID:     productID,
		Quantity:      quantity,
		Topic:         topic,
		Status:        TaskPending,
		NextRetryTime: now,
		Payload:       body,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewExpiryTask builds the payment-expiry intent for a freshly persisted order.
// It targets a delay topic; the realTopic header tells the scheduler where to
// forward the message once the delay level's TTL has elapsed.
func NewExpiryTask(order *Order, delayTopic, realTopic string) (*SeckillTask, error) {
	now := time.Now()
	body, err := json.Marshal(OrderExpiryEvent{OrderNo: order.OrderNo, CreatedAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal expiry event: %w", err)
	}
	return &SeckillTask{
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		Quantity:      orderQuantity(order),
		Topic:         delayTopic,
		Headers:       map[string]string{"real-topic": realTopic},
		Status:        TaskPending,
		NextRetryTime: now,
		Payload:       body,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewStockReleaseTask builds the outbox row for a ledger release that must not
// be lost. The releaseID doubles as the row's order reference and the broker
// message key.
func NewStockReleaseTask(releaseID, productID string, quantity int, topic string) (*SeckillTask, error) {
	now := time.Now()
	payload := StockReleasePayload{
		ReleaseID: releaseID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal release payload: %w", err)
	}
	return &SeckillTask{
		OrderNo:       releaseID,
		ProductID:     productID,
		Quantity:      quantity,
		Topic:         topic,
		Status:        TaskPending,
		NextRetryTime: now,
		Payload:       body,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func orderQuantity(order *Order) int {
	var n int
	for _, item := range order.Items {
		n += item.Quantity
	}
	return n
}
