// Package invoice models order invoices and the carrier shipments attached
// to them.
package invoice

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// ErrNotFound is returned when a requested invoice does not exist.
var ErrNotFound = errors.New("invoice not found")

// Totals are the amounts carried by an invoice.
type Totals struct {
	PaidTaxExcl     decimal.Decimal
	PaidTaxIncl     decimal.Decimal
	ProductsTaxExcl decimal.Decimal
	ProductsTaxIncl decimal.Decimal
	ShippingTaxExcl decimal.Decimal
	ShippingTaxIncl decimal.Decimal
	WrappingTaxExcl decimal.Decimal
	WrappingTaxIncl decimal.Decimal
}

// Add returns the sum of both totals.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		PaidTaxExcl:     t.PaidTaxExcl.Add(o.PaidTaxExcl),
		PaidTaxIncl:     t.PaidTaxIncl.Add(o.PaidTaxIncl),
		ProductsTaxExcl: t.ProductsTaxExcl.Add(o.ProductsTaxExcl),
		ProductsTaxIncl: t.ProductsTaxIncl.Add(o.ProductsTaxIncl),
		ShippingTaxExcl: t.ShippingTaxExcl.Add(o.ShippingTaxExcl),
		ShippingTaxIncl: t.ShippingTaxIncl.Add(o.ShippingTaxIncl),
		WrappingTaxExcl: t.WrappingTaxExcl.Add(o.WrappingTaxExcl),
		WrappingTaxIncl: t.WrappingTaxIncl.Add(o.WrappingTaxIncl),
	}
}

// Invoice is a billing document of an order.
type Invoice struct {
	ID      int64
	OrderID int64
	Number  int64
	Totals
	ShippingTaxMethod tax.Method
	ShippingTaxes     []tax.Amount
	CreatedAt         time.Time
}

// Add increments the invoice totals by delta. Negative components are
// ignored so totals never decrease.
func (i *Invoice) Add(delta Totals) {
	i.Totals = i.Totals.Add(nonNegative(delta))
}

func nonNegative(t Totals) Totals {
	clamp := func(d decimal.Decimal) decimal.Decimal {
		if d.IsNegative() {
			return decimal.Zero
		}
		return d
	}
	return Totals{
		PaidTaxExcl:     clamp(t.PaidTaxExcl),
		PaidTaxIncl:     clamp(t.PaidTaxIncl),
		ProductsTaxExcl: clamp(t.ProductsTaxExcl),
		ProductsTaxIncl: clamp(t.ProductsTaxIncl),
		ShippingTaxExcl: clamp(t.ShippingTaxExcl),
		ShippingTaxIncl: clamp(t.ShippingTaxIncl),
		WrappingTaxExcl: clamp(t.WrappingTaxExcl),
		WrappingTaxIncl: clamp(t.WrappingTaxIncl),
	}
}

// CarrierShipment records the carrier, weight and shipping cost of an
// invoice.
type CarrierShipment struct {
	ID                  int64
	OrderID             int64
	CarrierID           int64
	InvoiceID           int64
	Weight              decimal.Decimal
	ShippingCostTaxExcl decimal.Decimal
	ShippingCostTaxIncl decimal.Decimal
	CreatedAt           time.Time
}

// Repository persists invoices.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	// Create stores a new invoice and sets its ID.
	Create(ctx context.Context, inv *Invoice) error
	Update(ctx context.Context, inv *Invoice) error
	// CreateShipment stores a carrier shipment and sets its ID.
	CreateShipment(ctx context.Context, s *CarrierShipment) error
	// UpdateShipmentWeight sets the weight of the shipment of an invoice.
	UpdateShipmentWeight(ctx context.Context, invoiceID int64, weight decimal.Decimal) error
}
