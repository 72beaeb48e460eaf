package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// CannotDeleteError indicates the store refused to delete a product, for
// example because order lines still reference it.
type CannotDeleteError struct {
	ProductID int64
	Err       error
}

func (e *CannotDeleteError) Error() string {
	return fmt.Sprintf("failed to delete product #%d", e.ProductID)
}

func (e *CannotDeleteError) Unwrap() error {
	return e.Err
}

// Deleter removes products from the catalog.
type Deleter struct {
	products Repository
}

// NewDeleter creates a Deleter backed by the given Repository.
func NewDeleter(products Repository) *Deleter {
	return &Deleter{products: products}
}

// Delete removes a single product. It returns ErrNotFound when the product
// does not exist.
func (d *Deleter) Delete(ctx context.Context, id int64) error {
	if _, err := d.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "get product #%d", id)
	}

	if err := d.products.Delete(ctx, id); err != nil {
		var cdErr *CannotDeleteError
		if errors.As(err, &cdErr) || errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "delete product #%d", id)
	}
	return nil
}

// BulkDelete removes every product in ids, stopping at the first failure.
func (d *Deleter) BulkDelete(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := d.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
