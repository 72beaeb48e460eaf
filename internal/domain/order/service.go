package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
)

// AmountUpdater recomputes order amounts after the order lines changed.
type AmountUpdater struct {
	orders   Repository
	invoices invoice.Repository
}

// NewAmountUpdater creates an AmountUpdater with the required dependencies.
func NewAmountUpdater(orders Repository, invoices invoice.Repository) *AmountUpdater {
	return &AmountUpdater{
		orders:   orders,
		invoices: invoices,
	}
}

// Recompute derives the order totals from its lines and the cart, persists
// them and, when invoiceID is set, refreshes the weight of that invoice's
// shipment.
func (u *AmountUpdater) Recompute(ctx context.Context, o *Order, c *cart.Cart, pc pricing.Context, invoiceID int64) error {
	totals := Totals{
		ShippingTaxExcl:  c.Total(pc, false, cart.OnlyShipping, nil),
		ShippingTaxIncl:  c.Total(pc, true, cart.OnlyShipping, nil),
		WrappingTaxExcl:  c.Total(pc, false, cart.OnlyWrapping, nil),
		WrappingTaxIncl:  c.Total(pc, true, cart.OnlyWrapping, nil),
		DiscountsTaxExcl: c.Total(pc, false, cart.OnlyDiscounts, nil),
		DiscountsTaxIncl: c.Total(pc, true, cart.OnlyDiscounts, nil),
	}
	for i := range o.Lines {
		totals.ProductsTaxExcl = totals.ProductsTaxExcl.Add(o.Lines[i].TotalTaxExcl)
		totals.ProductsTaxIncl = totals.ProductsTaxIncl.Add(o.Lines[i].TotalTaxIncl)
	}

	// Discounts are computed on the cart; the order may be smaller.
	totals.DiscountsTaxExcl = decimal.Min(totals.DiscountsTaxExcl, totals.ProductsTaxExcl)
	totals.DiscountsTaxIncl = decimal.Min(totals.DiscountsTaxIncl, totals.ProductsTaxIncl)

	totals.PaidTaxExcl = paid(pc, totals.ProductsTaxExcl, totals.ShippingTaxExcl, totals.WrappingTaxExcl, totals.DiscountsTaxExcl)
	totals.PaidTaxIncl = paid(pc, totals.ProductsTaxIncl, totals.ShippingTaxIncl, totals.WrappingTaxIncl, totals.DiscountsTaxIncl)

	if err := u.orders.UpdateTotals(ctx, o.ID, totals); err != nil {
		return errors.Wrapf(err, "update order #%d totals", o.ID)
	}
	o.Totals = totals

	if invoiceID == 0 {
		return nil
	}
	if err := u.invoices.UpdateShipmentWeight(ctx, invoiceID, o.InvoiceWeight(invoiceID)); err != nil {
		return errors.Wrapf(err, "update invoice #%d shipment weight", invoiceID)
	}
	return nil
}

// InvoiceWeight returns the weight of the lines billed on an invoice.
func (o *Order) InvoiceWeight(invoiceID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		if l.InvoiceID != invoiceID {
			continue
		}
		sum = sum.Add(l.UnitWeight.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func paid(pc pricing.Context, products, shipping, wrapping, discounts decimal.Decimal) decimal.Decimal {
	total := products.Add(shipping).Add(wrapping).Sub(discounts)
	return pc.Round(pricing.FloorAtZero(total))
}
