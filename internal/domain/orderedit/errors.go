package orderedit

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order edit validation.
var (
	ErrInvalidQuantity         = errors.New("quantity must be greater than 0")
	ErrOrderAlreadyShipped     = errors.New("order has already been shipped")
	ErrDuplicateProductInOrder = errors.New("product is already in the order")
	// ErrCartNotFound means the order lost its cart. It is an integrity
	// failure, not a user error.
	ErrCartNotFound = errors.New("cart not found for order")
)

// DuplicateProductInInvoiceError indicates the targeted invoice already
// bills the product.
type DuplicateProductInInvoiceError struct {
	InvoiceNumber string
}

func (e *DuplicateProductInInvoiceError) Error() string {
	return fmt.Sprintf("product is already in invoice %s", e.InvoiceNumber)
}

// ProductOutOfStockError indicates the product cannot be supplied in the
// requested quantity.
type ProductOutOfStockError struct {
	ProductID int64
}

func (e *ProductOutOfStockError) Error() string {
	return fmt.Sprintf("product #%d is out of stock", e.ProductID)
}

// MinimumQuantityError indicates the requested quantity is under the
// product minimum.
type MinimumQuantityError struct {
	ProductID int64
	Minimum   int
}

func (e *MinimumQuantityError) Error() string {
	return fmt.Sprintf("product #%d must be added with a quantity of at least %d", e.ProductID, e.Minimum)
}

// PersistenceError wraps a storage failure with the entity being written.
type PersistenceError struct {
	Entity string
	ID     int64
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("persist %s: %s", e.Entity, e.Err)
	}
	return fmt.Sprintf("persist %s #%d: %s", e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(entity string, id int64, err error) error {
	return &PersistenceError{Entity: entity, ID: id, Err: err}
}

// failureReason labels an error for metrics.
func failureReason(err error) string {
	var (
		dupInvoice *DuplicateProductInInvoiceError
		outOfStock *ProductOutOfStockError
		minimum    *MinimumQuantityError
		persist    *PersistenceError
	)
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrOrderAlreadyShipped):
		return "order_shipped"
	case errors.Is(err, ErrDuplicateProductInOrder), errors.As(err, &dupInvoice):
		return "duplicate_product"
	case errors.As(err, &outOfStock):
		return "out_of_stock"
	case errors.As(err, &minimum):
		return "minimum_quantity"
	case errors.Is(err, ErrCartNotFound):
		return "cart_not_found"
	case errors.As(err, &persist):
		return "persistence"
	default:
		return "other"
	}
}

// isRejection reports whether err is a business rule refusal rather than a
// system failure.
func isRejection(err error) bool {
	switch failureReason(err) {
	case "invalid_quantity", "order_shipped", "duplicate_product", "out_of_stock", "minimum_quantity":
		return true
	default:
		return false
	}
}
