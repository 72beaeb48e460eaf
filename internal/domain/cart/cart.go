// Package cart models the working set of product selections behind an
// order. Cart totals drive invoice and order amounts when an order is edited.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// ErrNotFound is returned when no cart is bound to an order.
var ErrNotFound = errors.New("cart not found")

// Key identifies a cart line. VariantID is 0 for products without variants.
type Key struct {
	ProductID int64
	VariantID int64
}

// Line is a product selection with the catalog data needed to price it.
type Line struct {
	ProductID int64
	VariantID int64
	Quantity  int
	Name      string
	BasePrice decimal.Decimal // tax excluded, variant impact included
	Weight    decimal.Decimal // per unit
	Tax       tax.Calculator
	AddedAt   time.Time
}

// Key returns the line identity.
func (l *Line) Key() Key {
	return Key{ProductID: l.ProductID, VariantID: l.VariantID}
}

// PriceOverride replaces the unit prices of one product/variant within a
// single cart.
type PriceOverride struct {
	ProductID int64
	VariantID int64
	TaxExcl   decimal.Decimal
	TaxIncl   decimal.Decimal
}

// Amount is a tax-excluded/tax-included pair.
type Amount struct {
	TaxExcl decimal.Decimal
	TaxIncl decimal.Decimal
}

// Cart is the mutable selection of products underlying an order.
type Cart struct {
	ID          int64
	ShopID      int64
	OrderID     int64
	CustomerID  int64
	CurrencyID  int64
	CurrencyISO string
	// Precision is the computing precision of the cart currency.
	Precision   int32
	Lines       []Line
	Rules       []discount.Rule
	Overrides   map[Key]PriceOverride
	Shipping    decimal.Decimal // carrier cost, tax excluded
	ShippingTax tax.Calculator
	Gift        bool
	Wrapping    Amount
}

// Item is a priced cart line.
type Item struct {
	ProductID    int64
	VariantID    int64
	Name         string
	Quantity     int
	Price        decimal.Decimal
	PriceWithTax decimal.Decimal
	Total        decimal.Decimal
	TotalWithTax decimal.Decimal
	Weight       decimal.Decimal
	Tax          tax.Calculator
}

// Unit returns the unit price with or without tax.
func (i Item) Unit(withTax bool) decimal.Decimal {
	if withTax {
		return i.PriceWithTax
	}
	return i.Price
}

// WithQuantity returns a copy of the item priced for qty units.
func (i Item) WithQuantity(pc pricing.Context, qty int) Item {
	i.Quantity = qty
	i.Total = pc.LineTotal(i.Price, qty)
	i.TotalWithTax = pc.LineTotal(i.PriceWithTax, qty)
	return i
}

// Line returns the line matching key.
func (c *Cart) Line(key Key) (*Line, bool) {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return &c.Lines[i], true
		}
	}
	return nil, false
}

// Items prices every line of the cart. Totals follow the context rounding
// policy.
func (c *Cart) Items(pc pricing.Context) []Item {
	items := make([]Item, 0, len(c.Lines))
	for i := range c.Lines {
		items = append(items, c.item(pc, &c.Lines[i]))
	}
	return items
}

// Item prices the first line of productID. When variantID is nil any
// variant of the product matches.
func (c *Cart) Item(pc pricing.Context, productID int64, variantID *int64) (Item, bool) {
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ProductID != productID {
			continue
		}
		if variantID != nil && l.VariantID != *variantID {
			continue
		}
		return c.item(pc, l), true
	}
	return Item{}, false
}

func (c *Cart) item(pc pricing.Context, l *Line) Item {
	price := l.BasePrice
	priceWithTax := l.Tax.AddTaxes(l.BasePrice)
	if o, ok := c.Overrides[l.Key()]; ok {
		price = o.TaxExcl
		priceWithTax = o.TaxIncl
	}
	return Item{
		ProductID:    l.ProductID,
		VariantID:    l.VariantID,
		Name:         l.Name,
		Quantity:     l.Quantity,
		Price:        price,
		PriceWithTax: priceWithTax,
		Total:        pc.LineTotal(price, l.Quantity),
		TotalWithTax: pc.LineTotal(priceWithTax, l.Quantity),
		Weight:       l.Weight,
		Tax:          l.Tax,
	}
}

// TotalWeight returns the weight of every unit in the cart.
func (c *Cart) TotalWeight() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Weight.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// FreeShipping reports whether an active attached rule waives shipping.
func (c *Cart) FreeShipping() bool {
	for i := range c.Rules {
		if c.Rules[i].Active && c.Rules[i].FreeShipping() {
			return true
		}
	}
	return false
}

// Repository persists carts.
type Repository interface {
	// GetByOrderID loads the cart of an order with its lines, rules and
	// overrides. Line tax calculators are left empty.
	GetByOrderID(ctx context.Context, orderID int64) (*Cart, error)
	SaveLine(ctx context.Context, cartID int64, line Line) error
	SavePriceOverride(ctx context.Context, cartID int64, o PriceOverride) error
	AddRule(ctx context.Context, cartID, ruleID int64) error
}
