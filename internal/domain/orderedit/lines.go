package orderedit

import (
	"context"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
)

func newLine(o *order.Order, item cart.Item, invoiceID int64) order.Line {
	return order.Line{
		OrderID:          o.ID,
		InvoiceID:        invoiceID,
		ProductID:        item.ProductID,
		VariantID:        item.VariantID,
		Name:             item.Name,
		Quantity:         item.Quantity,
		UnitPriceTaxExcl: item.Price,
		UnitPriceTaxIncl: item.PriceWithTax,
		TotalTaxExcl:     item.Total,
		TotalTaxIncl:     item.TotalWithTax,
		UnitWeight:       item.Weight,
	}
}

// reconcile aligns the other lines of the same product and variant with the
// prices of the added line. Each keeps its own invoice and quantity.
func (s *Service) reconcile(ctx context.Context, o *order.Order, added *order.Line, pc pricing.Context) error {
	for i := range o.Lines {
		l := &o.Lines[i]
		if l.ID == added.ID || l.ProductID != added.ProductID || l.VariantID != added.VariantID {
			continue
		}

		l.UnitPriceTaxExcl = added.UnitPriceTaxExcl
		l.UnitPriceTaxIncl = added.UnitPriceTaxIncl
		l.TotalTaxExcl = pc.LineTotal(l.UnitPriceTaxExcl, l.Quantity)
		l.TotalTaxIncl = pc.LineTotal(l.UnitPriceTaxIncl, l.Quantity)

		if err := s.orders.UpdateLine(ctx, l); err != nil {
			return persistErr("order line", l.ID, err)
		}
	}
	return nil
}

// lineTaxes splits the tax of a line per rate. Unit amounts are rounded
// when items are rounded; totals follow the rounding policy.
func lineTaxes(item cart.Item, line *order.Line, pc pricing.Context) []order.LineTax {
	amounts := item.Tax.TaxesAmount(line.UnitPriceTaxExcl)
	taxes := make([]order.LineTax, 0, len(amounts))
	for _, a := range amounts {
		unit := a.Amount
		if pc.Policy == pricing.RoundItem {
			unit = pc.Round(unit)
		}
		taxes = append(taxes, order.LineTax{
			LineID:      line.ID,
			RateID:      a.RateID,
			UnitAmount:  unit,
			TotalAmount: pc.LineTotal(a.Amount, line.Quantity),
		})
	}
	return taxes
}
