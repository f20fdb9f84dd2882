// internal/service/seckill/infrastructure/catalog_gorm.go
package infrastructure

import (
	"context"

	"flashmall/internal/service/seckill/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormCatalog implements port.ProductCatalog on the product table.
type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) FindByID(ctx context.Context, productID string) (*domain.Product, error) {
	var model ProductModel
	err := c.db.WithContext(ctx).Where("id = ?", productID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load product")
	}
	return toDomainProduct(&model), nil
}

func (c *GormCatalog) AdjustStock(ctx context.Context, productID string, delta int) error {
	res := c.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to adjust product stock")
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
