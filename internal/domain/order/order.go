// Package order models placed customer orders, their lines and amounts.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// State is the current status of an order.
type State struct {
	ID        int64
	Name      string
	Shipped   bool
	Cancelled bool
	Error     bool
}

// Totals are the amounts carried by an order.
type Totals struct {
	PaidTaxExcl      decimal.Decimal
	PaidTaxIncl      decimal.Decimal
	ProductsTaxExcl  decimal.Decimal
	ProductsTaxIncl  decimal.Decimal
	ShippingTaxExcl  decimal.Decimal
	ShippingTaxIncl  decimal.Decimal
	WrappingTaxExcl  decimal.Decimal
	WrappingTaxIncl  decimal.Decimal
	DiscountsTaxExcl decimal.Decimal
	DiscountsTaxIncl decimal.Decimal
}

// Order represents a placed customer order.
type Order struct {
	ID                int64
	Reference         string
	ShopID            int64
	CustomerID        int64
	CartID            int64
	CarrierID         int64
	CurrencyID        int64
	CurrencyISO       string
	InvoiceAddressID  int64
	DeliveryAddressID int64
	State             State
	Lines             []Line
	// Invoices lists the ids of the invoices issued for the order.
	Invoices  []int64
	CartRules []CartRule
	Totals    Totals
	CreatedAt time.Time
}

// HasBeenShipped reports whether the order left the warehouse.
func (o *Order) HasBeenShipped() bool {
	return o.State.Shipped
}

// HasInvoice reports whether at least one invoice was issued.
func (o *Order) HasInvoice() bool {
	return len(o.Invoices) > 0
}

// TaxAddressID returns the address used to resolve taxes.
func (o *Order) TaxAddressID(kind tax.AddressKind) int64 {
	if kind == tax.DeliveryAddress {
		return o.DeliveryAddressID
	}
	return o.InvoiceAddressID
}

// Line is an order detail: a product quantity billed at fixed unit prices.
type Line struct {
	ID               int64
	OrderID          int64
	InvoiceID        int64 // 0 when not invoiced
	ProductID        int64
	VariantID        int64
	Name             string
	Quantity         int
	UnitPriceTaxExcl decimal.Decimal
	UnitPriceTaxIncl decimal.Decimal
	TotalTaxExcl     decimal.Decimal
	TotalTaxIncl     decimal.Decimal
	UnitWeight       decimal.Decimal
	Taxes            []LineTax
}

// Matches reports whether the line is for productID. When variantID is nil
// any variant matches.
func (l *Line) Matches(productID int64, variantID *int64) bool {
	if l.ProductID != productID {
		return false
	}
	return variantID == nil || l.VariantID == *variantID
}

// LineTax is the tax collected on an order line by one rate.
type LineTax struct {
	LineID      int64
	RateID      int64
	UnitAmount  decimal.Decimal
	TotalAmount decimal.Decimal
}

// CartRule is the order-level copy of a discount rule attached to the cart.
type CartRule struct {
	ID           int64
	OrderID      int64
	RuleID       int64
	InvoiceID    int64
	Name         string
	ValueTaxExcl decimal.Decimal
	ValueTaxIncl decimal.Decimal
	FreeShipping bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// GetByID loads an order with its state, lines, invoice ids and cart rules.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// CreateLine stores a new line and sets its ID.
	CreateLine(ctx context.Context, line *Line) error
	UpdateLine(ctx context.Context, line *Line) error
	// SaveLineTaxes replaces the tax breakdown of a line.
	SaveLineTaxes(ctx context.Context, lineID int64, taxes []LineTax) error
	// AddCartRule stores a cart rule copy and sets its ID.
	AddCartRule(ctx context.Context, rule *CartRule) error
	UpdateTotals(ctx context.Context, orderID int64, totals Totals) error
}
