// Package orderedit adds products to orders that were already placed.
package orderedit

import (
	"github.com/shopspring/decimal"
)

// AddProductCommand requests adding a product line to an existing order.
type AddProductCommand struct {
	OrderID   int64
	ProductID int64
	// VariantID selects a product variant. Nil means the product itself.
	VariantID *int64
	Quantity  int
	// PriceTaxIncl and PriceTaxExcl override the catalog unit price within
	// the order's cart.
	PriceTaxIncl *decimal.Decimal
	PriceTaxExcl *decimal.Decimal
	// InvoiceID targets an existing invoice. Nil creates a new invoice when
	// the order is invoiced.
	InvoiceID    *int64
	FreeShipping bool
}

func (c *AddProductCommand) variantID() int64 {
	if c.VariantID == nil {
		return 0
	}
	return *c.VariantID
}

// Result identifies what the command created.
type Result struct {
	LineID    int64
	InvoiceID int64 // 0 when the order is not invoiced
}
