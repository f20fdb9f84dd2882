// internal/service/seckill/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"
	"time"

	"flashmall/internal/service/seckill/domain"
)

// SeckillTaskModel maps the durable outbox table. Rows are append-and-update
// only; dispatched rows stay for audit and replay.
type SeckillTaskModel struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	OrderNo       string `gorm:"size:64;index"`
	UserID        string `gorm:"size:64"`
	ProductID     string `gorm:"size:64"`
	Quantity      int
	Topic         string    `gorm:"size:128"`
	Headers       string    `gorm:"type:text"`
	Status        string    `gorm:"size:16;index:idx_status_retry"`
	NextRetryTime time.Time `gorm:"index:idx_status_retry"`
	Payload       []byte    `gorm:"type:blob"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (SeckillTaskModel) TableName() string { return "seckill_task" }

// OrderModel maps the order table written by the fulfillment consumer.
type OrderModel struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement"`
	OrderNo     string  `gorm:"size:64;uniqueIndex"`
	UserID      string  `gorm:"size:64;index"`
	Status      string  `gorm:"size:32;index"`
	TotalAmount float64 `gorm:"type:decimal(10,2)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OrderModel) TableName() string { return "order_info" }

type OrderItemModel struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	OrderNo      string `gorm:"size:64;index"`
	ProductID    string `gorm:"size:64"`
	ProductName  string `gorm:"size:128"`
	ProductImage string `gorm:"size:256"`
	Price        float64 `gorm:"type:decimal(10,2)"`
	Quantity     int
	CreatedAt    time.Time
}

func (OrderItemModel) TableName() string { return "order_item" }

// IdempotencyRecordModel is the dedup ledger of at-least-once consumers. The
// composite unique key is the whole mechanism: a second insert for the same
// (consumer, message) fails with a duplicate-entry error.
type IdempotencyRecordModel struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	ConsumerName string `gorm:"size:64;uniqueIndex:uk_consumer_message"`
	MessageID    string `gorm:"size:64;uniqueIndex:uk_consumer_message"`
	CreatedAt    time.Time
}

func (IdempotencyRecordModel) TableName() string { return "idempotency_record" }

// ProductModel is the authoritative catalog row the pipeline reads and whose
// stock column mirrors the ledger.
type ProductModel struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Name         string  `gorm:"size:128"`
	Price        float64 `gorm:"type:decimal(10,2)"`
	Image        string  `gorm:"size:256"`
	Stock        int64
	PurchaseRule string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ProductModel) TableName() string { return "product" }

func toTaskModel(task *domain.SeckillTask) (*SeckillTaskModel, error) {
	var headers string
	if len(task.Headers) > 0 {
		b, err := json.Marshal(task.Headers)
		if err != nil {
			return nil, err
		}
		headers = string(b)
	}
	return &SeckillTaskModel{
		ID:            task.ID,
		OrderNo:       task.OrderNo,
		UserID:        task.UserID,
		ProductID:     task.ProductID,
		Quantity:      task.Quantity,
		Topic:         task.Topic,
		Headers:       headers,
		Status:        string(task.Status),
		NextRetryTime: task.NextRetryTime,
		Payload:       task.Payload,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}, nil
}

func toDomainTask(m *SeckillTaskModel) (*domain.SeckillTask, error) {
	var headers map[string]string
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &headers); err != nil {
			return nil, err
		}
	}
	return &domain.SeckillTask{
		ID:            m.ID,
		OrderNo:       m.OrderNo,
		UserID:        m.UserID,
		ProductID:     m.ProductID,
		Quantity:      m.Quantity,
		Topic:         m.Topic,
		Headers:       headers,
		Status:        domain.TaskStatus(m.Status),
		NextRetryTime: m.NextRetryTime,
		Payload:       m.Payload,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func toDomainOrder(m *OrderModel, items []OrderItemModel) *domain.Order {
	order := &domain.Order{
		OrderNo:     m.OrderNo,
		UserID:      m.UserID,
		Status:      domain.State(m.Status),
		TotalAmount: m.TotalAmount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Price:        item.Price,
			Quantity:     item.Quantity,
		})
	}
	return order
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:           m.ID,
		Name:         m.Name,
		Price:        m.Price,
		Image:        m.Image,
		Stock:        m.Stock,
		PurchaseRule: m.PurchaseRule,
	}
}
