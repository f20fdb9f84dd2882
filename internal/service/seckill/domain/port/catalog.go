// internal/service/seckill/domain/port/catalog.go
package port

import (
	"context"

	"flashmall/internal/service/seckill/domain"
)

// ProductCatalog exposes the authoritative product data the pipeline needs:
// name/price/image at consumption time and the relational stock mirror.
type ProductCatalog interface {
	FindByID(ctx context.Context, productID string) (*domain.Product, error)

	// AdjustStock changes the relational stock by delta (negative to deduct).
	AdjustStock(ctx context.Context, productID string, delta int) error
}
