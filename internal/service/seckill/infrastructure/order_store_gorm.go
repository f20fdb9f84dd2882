// internal/service/seckill/infrastructure/order_store_gorm.go
package infrastructure

import (
	"context"

	"flashmall/internal/service/seckill/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderStore implements domain.OrderStore. Every method runs inside a
// single transaction so the idempotency record, the order rows, the stock
// mirror and the outbox intent commit or roll back together.
type GormOrderStore struct {
	db *gorm.DB
}

func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db}
}

func (s *GormOrderStore) CreateFromTask(ctx context.Context, consumerName string, order *domain.Order, expiryTask *domain.SeckillTask) error {
	taskModel, err := toTaskModel(expiryTask)
	if err != nil {
		return errors.Wrap(err, "failed to encode expiry task")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The dedup ledger insert goes first: a redelivered message fails here
		// before touching any business row.
		record := IdempotencyRecordModel{
			ConsumerName: consumerName,
			MessageID:    order.OrderNo,
		}
		if err := tx.Create(&record).Error; err != nil {
			if isDuplicateEntry(err) {
				return domain.ErrDuplicateTask
			}
			return errors.Wrap(err, "failed to insert idempotency record")
		}

		orderModel := OrderModel{
			OrderNo:     order.OrderNo,
			UserID:      order.UserID,
			Status:      string(order.Status),
			TotalAmount: order.TotalAmount,
			CreatedAt:   order.CreatedAt,
			UpdatedAt:   order.UpdatedAt,
		}
		if err := tx.Create(&orderModel).Error; err != nil {
			return errors.Wrap(err, "failed to insert order")
		}

		for _, item := range order.Items {
			itemModel := OrderItemModel{
				OrderNo:      order.OrderNo,
				ProductID:    item.ProductID,
				ProductName:  item.ProductName,
				ProductImage: item.ProductImage,
				Price:        item.Price,
				Quantity:     item.Quantity,
			}
			if err := tx.Create(&itemModel).Error; err != nil {
				return errors.Wrap(err, "failed to insert order item")
			}

			// Mirror the ledger decrement in the relational catalog. The guard
			// keeps the column from going negative even under replays.
			res := tx.Model(&ProductModel{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return errors.Wrap(res.Error, "failed to decrement product stock")
			}
			// A missing row or drifted stock must abort the whole transaction,
			// idempotency record included, so the redelivery can run again once
			// the mirror is repaired.
			if res.RowsAffected == 0 {
				return errors.Errorf("stock mirror rejected decrement of %d for product %s", item.Quantity, item.ProductID)
			}
		}

		if err := tx.Create(taskModel).Error; err != nil {
			return errors.Wrap(err, "failed to insert expiry task")
		}
		expiryTask.ID = taskModel.ID
		return nil
	})
}

func (s *GormOrderStore) CancelIfUnpaid(ctx context.Context, orderNo string) (*domain.Order, bool, error) {
	var (
		result    *domain.Order
		cancelled bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_no = ?", orderNo).
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrap(err, "failed to load order for cancellation")
		}

		var items []OrderItemModel
		if err := tx.Where("order_no = ?", orderNo).Find(&items).Error; err != nil {
			return errors.Wrap(err, "failed to load order items")
		}

		order := toDomainOrder(&model, items)
		if err := order.Cancel(); err != nil {
			// Already paid, cancelled or further along: report the state,
			// change nothing.
			result = order
			return nil
		}

		if err := tx.Model(&OrderModel{}).
			Where("order_no = ?", orderNo).
			Update("status", string(order.Status)).Error; err != nil {
			return errors.Wrap(err, "failed to cancel order")
		}

		for _, item := range items {
			res := tx.Model(&ProductModel{}).
				Where("id = ?", item.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity))
			if res.Error != nil {
				return errors.Wrap(res.Error, "failed to restore product stock")
			}
		}

		result = order
		cancelled = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, cancelled, nil
}

func (s *GormOrderStore) FindByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	var model OrderModel
	err := s.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load order")
	}

	var items []OrderItemModel
	if err := s.db.WithContext(ctx).Where("order_no = ?", orderNo).Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load order items")
	}
	return toDomainOrder(&model, items), nil
}
