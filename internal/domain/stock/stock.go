// Package stock models available-quantity bookkeeping.
package stock

import (
	"context"
)

// OutOfStockPolicy defines whether a product may be ordered once its
// available quantity reaches zero.
type OutOfStockPolicy int

const (
	// Deny refuses orders beyond available stock.
	Deny OutOfStockPolicy = iota
	// Allow accepts orders beyond available stock.
	Allow
	// Default defers to the shop-wide setting.
	Default
)

// Orderable reports whether a product with the given policy may be ordered
// past its available quantity.
func Orderable(policy OutOfStockPolicy, allowByDefault bool) bool {
	switch policy {
	case Allow:
		return true
	case Default:
		return allowByDefault
	default:
		return false
	}
}

// Repository reads and updates available quantities. A variantID of 0
// addresses the product-level counter.
type Repository interface {
	OutOfStockPolicy(ctx context.Context, productID int64) (OutOfStockPolicy, error)
	AvailableQuantity(ctx context.Context, productID, variantID int64) (int, error)
	Adjust(ctx context.Context, productID, variantID int64, delta int) error
	// Synchronize recomputes the product-level counter from its variants.
	Synchronize(ctx context.Context, productID int64) error
}
