package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
)

// Scope selects which parts of the cart a total covers.
type Scope int

const (
	// Both covers products, shipping and wrapping minus discounts.
	Both Scope = iota
	// BothWithoutShipping covers products and wrapping minus discounts.
	BothWithoutShipping
	// OnlyProducts covers products only.
	OnlyProducts
	// OnlyDiscounts covers product discounts only.
	OnlyDiscounts
	// OnlyShipping covers the shipping cost after free-shipping rules.
	OnlyShipping
	// OnlyWrapping covers gift wrapping.
	OnlyWrapping
)

// Total computes a cart total for scope. When restrict is non-nil, the
// product and discount parts only account for those items.
func (c *Cart) Total(pc pricing.Context, withTax bool, scope Scope, restrict []Item) decimal.Decimal {
	items := restrict
	if items == nil {
		items = c.Items(pc)
	}

	switch scope {
	case OnlyShipping:
		return c.shipping(pc, withTax)
	case OnlyWrapping:
		return c.wrapping(withTax)
	}

	products := productsTotal(pc, items, withTax)
	if scope == OnlyProducts {
		return products
	}

	discounts := c.discounts(pc, items, withTax, products)
	switch scope {
	case OnlyDiscounts:
		return discounts
	case BothWithoutShipping:
		return pricing.FloorAtZero(products.Add(c.wrapping(withTax)).Sub(discounts))
	default:
		total := products.Add(c.shipping(pc, withTax)).Add(c.wrapping(withTax)).Sub(discounts)
		return pricing.FloorAtZero(total)
	}
}

// ShippingCost returns the carrier cost before free-shipping rules apply.
func (c *Cart) ShippingCost(pc pricing.Context, withTax bool) decimal.Decimal {
	cost := c.Shipping
	if withTax {
		cost = c.ShippingTax.AddTaxes(cost)
	}
	return pc.Round(cost)
}

func (c *Cart) shipping(pc pricing.Context, withTax bool) decimal.Decimal {
	if c.FreeShipping() {
		return decimal.Zero
	}
	return c.ShippingCost(pc, withTax)
}

func (c *Cart) wrapping(withTax bool) decimal.Decimal {
	if !c.Gift {
		return decimal.Zero
	}
	if withTax {
		return c.Wrapping.TaxIncl
	}
	return c.Wrapping.TaxExcl
}

// discounts sums the product discounts of attached rules, capped at the
// products total.
func (c *Cart) discounts(pc pricing.Context, items []Item, withTax bool, products decimal.Decimal) decimal.Decimal {
	if len(c.Rules) == 0 {
		return decimal.Zero
	}

	discountItems := make([]discount.Item, len(items))
	for i, item := range items {
		discountItems[i] = discount.Item{
			ProductID: item.ProductID,
			Price:     item.Unit(withTax),
			Quantity:  item.Quantity,
		}
	}

	sum := decimal.Zero
	for i := range c.Rules {
		// Attached rules apply past their validity window; only disabled ones are skipped.
		if !c.Rules[i].Active {
			continue
		}
		d, err := discount.Apply(&c.Rules[i], discountItems)
		if errors.Is(err, discount.ErrNotApplicable) {
			continue
		}
		if err != nil {
			// Unknown rule types discount nothing.
			continue
		}
		sum = sum.Add(d.Amount)
	}
	return pc.Round(decimal.Min(sum, products))
}

func productsTotal(pc pricing.Context, items []Item, withTax bool) decimal.Decimal {
	sum := decimal.Zero
	for i := range items {
		if withTax {
			sum = sum.Add(items[i].TotalWithTax)
		} else {
			sum = sum.Add(items[i].Total)
		}
	}
	if pc.Policy == pricing.RoundTotal {
		return pc.Round(sum)
	}
	return sum
}
