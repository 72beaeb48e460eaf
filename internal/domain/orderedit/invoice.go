package orderedit

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
)

// resolveInvoice picks the invoice billing the new item. It returns nil
// when the order is not invoiced.
func (s *Service) resolveInvoice(ctx context.Context, o *order.Order, c *cart.Cart, pc pricing.Context, cmd AddProductCommand, item cart.Item) (*invoice.Invoice, error) {
	if !o.HasInvoice() {
		return nil, nil
	}
	if cmd.InvoiceID != nil {
		return s.extendInvoice(ctx, o, c, pc, *cmd.InvoiceID, item)
	}
	return s.createInvoice(ctx, o, c, pc, cmd.FreeShipping, item)
}

// extendInvoice adds the item to an existing invoice. Shipping was fixed
// when the invoice was created and is left out.
func (s *Service) extendInvoice(ctx context.Context, o *order.Order, c *cart.Cart, pc pricing.Context, invoiceID int64, item cart.Item) (*invoice.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, errors.Wrapf(err, "get invoice #%d", invoiceID)
	}
	if inv.OrderID != o.ID {
		return nil, errors.Wrapf(invoice.ErrNotFound, "invoice #%d of order #%d", invoiceID, o.ID)
	}

	items := []cart.Item{item}
	inv.Add(invoice.Totals{
		PaidTaxExcl:     pc.Round(c.Total(pc, false, cart.BothWithoutShipping, items)),
		PaidTaxIncl:     pc.Round(c.Total(pc, true, cart.BothWithoutShipping, items)),
		ProductsTaxExcl: c.Total(pc, false, cart.OnlyProducts, items),
		ProductsTaxIncl: c.Total(pc, true, cart.OnlyProducts, items),
	})
	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, persistErr("invoice", inv.ID, err)
	}
	return inv, nil
}

// createInvoice issues a new invoice covering only the new item, with its
// carrier shipment.
func (s *Service) createInvoice(ctx context.Context, o *order.Order, c *cart.Cart, pc pricing.Context, freeShipping bool, item cart.Item) (*invoice.Invoice, error) {
	if freeShipping {
		if err := s.grantFreeShipping(ctx, o, c, pc); err != nil {
			return nil, err
		}
	}

	number, err := s.numbers.Next(ctx, o.ShopID)
	if err != nil {
		return nil, persistErr("invoice number", o.ShopID, err)
	}

	addressID := o.TaxAddressID(s.cfg.TaxAddress)
	shippingTax, err := s.taxes.ForCarrier(ctx, o.CarrierID, addressID)
	if err != nil {
		return nil, errors.Wrapf(err, "carrier #%d tax", o.CarrierID)
	}

	items := []cart.Item{item}
	inv := &invoice.Invoice{
		OrderID: o.ID,
		Number:  number,
		Totals: invoice.Totals{
			PaidTaxExcl:     pc.Round(c.Total(pc, false, cart.Both, items)),
			PaidTaxIncl:     pc.Round(c.Total(pc, true, cart.Both, items)),
			ProductsTaxExcl: c.Total(pc, false, cart.OnlyProducts, items),
			ProductsTaxIncl: c.Total(pc, true, cart.OnlyProducts, items),
			ShippingTaxExcl: c.Total(pc, false, cart.OnlyShipping, items),
			ShippingTaxIncl: c.Total(pc, true, cart.OnlyShipping, items),
			WrappingTaxExcl: c.Total(pc, false, cart.OnlyWrapping, items),
			WrappingTaxIncl: c.Total(pc, true, cart.OnlyWrapping, items),
		},
		ShippingTaxMethod: shippingTax.Method,
		CreatedAt:         s.now(),
	}
	inv.ShippingTaxes = shippingTax.TaxesAmount(inv.ShippingTaxExcl)

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, persistErr("invoice", 0, err)
	}

	shipment := &invoice.CarrierShipment{
		OrderID:             o.ID,
		CarrierID:           o.CarrierID,
		InvoiceID:           inv.ID,
		Weight:              c.TotalWeight(),
		ShippingCostTaxExcl: inv.ShippingTaxExcl,
		ShippingCostTaxIncl: inv.ShippingTaxIncl,
		CreatedAt:           inv.CreatedAt,
	}
	if err := s.invoices.CreateShipment(ctx, shipment); err != nil {
		return nil, persistErr("carrier shipment", 0, err)
	}

	o.Invoices = append(o.Invoices, inv.ID)
	return inv, nil
}

// grantFreeShipping creates a single-use free-shipping rule for the order's
// customer and attaches it to both the cart and the order.
func (s *Service) grantFreeShipping(ctx context.Context, o *order.Order, c *cart.Cart, pc pricing.Context) error {
	rule := discount.NewFreeShipping(o.CustomerID, o.CurrencyID, s.now())
	if err := s.rules.Create(ctx, rule); err != nil {
		return persistErr("cart rule", 0, err)
	}

	// The rule is worth the shipping it waives.
	valueTaxExcl := c.ShippingCost(pc, false)
	valueTaxIncl := c.ShippingCost(pc, true)

	if err := s.carts.AddRule(ctx, c, rule); err != nil {
		return persistErr("cart", c.ID, err)
	}

	orderRule := order.CartRule{
		OrderID:      o.ID,
		RuleID:       rule.ID,
		Name:         rule.Name,
		ValueTaxExcl: valueTaxExcl,
		ValueTaxIncl: valueTaxIncl,
		FreeShipping: true,
	}
	if err := s.orders.AddCartRule(ctx, &orderRule); err != nil {
		return persistErr("order cart rule", o.ID, err)
	}
	o.CartRules = append(o.CartRules, orderRule)
	return nil
}
