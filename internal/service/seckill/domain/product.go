// internal/service/seckill/domain/product.go
package domain

// Product is the authoritative catalog view the pipeline consumes: pricing and
// imagery for order items, relational stock for the mirror decrement, and an
// optional admission rule evaluated before a user may enter the sale.
type Product struct {
	ID           string
	Name         string
	Price        float64
	Image        string
	Stock        int64
	PurchaseRule string // CEL expression; empty admits everyone
}
