package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// Result of a quantity update.
const (
	// Updated means the line was created or incremented.
	Updated = 1
	// Rejected means the product cannot be added at all.
	Rejected = 0
	// BelowMinimum means the resulting quantity is under the product minimum.
	BelowMinimum = -1
)

// Override carries admin-entered unit prices. A nil side is derived from the
// other through the line's tax calculator.
type Override struct {
	ProductID int64
	VariantID int64
	TaxExcl   *decimal.Decimal
	TaxIncl   *decimal.Decimal
}

// Service loads and mutates order carts.
type Service struct {
	carts Repository
	taxes tax.Factory
	now   func() time.Time
}

// NewService creates a new cart service.
func NewService(carts Repository, taxes tax.Factory) *Service {
	return &Service{
		carts: carts,
		taxes: taxes,
		now:   time.Now,
	}
}

// ForOrder loads the cart of an order and resolves its tax calculators for
// the given carrier and tax address.
func (s *Service) ForOrder(ctx context.Context, orderID, carrierID, addressID int64) (*Cart, error) {
	c, err := s.carts.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	calcs := make(map[int64]tax.Calculator, len(c.Lines))
	for i := range c.Lines {
		l := &c.Lines[i]
		calc, ok := calcs[l.ProductID]
		if !ok {
			calc, err = s.taxes.ForProduct(ctx, l.ProductID, addressID)
			if err != nil {
				return nil, errors.Wrapf(err, "product #%d tax", l.ProductID)
			}
			calcs[l.ProductID] = calc
		}
		l.Tax = calc
	}

	c.ShippingTax, err = s.taxes.ForCarrier(ctx, carrierID, addressID)
	if err != nil {
		return nil, errors.Wrapf(err, "carrier #%d tax", carrierID)
	}
	return c, nil
}

// UpdateQuantity adds qty units of a product to the cart. It returns
// Updated, Rejected or BelowMinimum.
func (s *Service) UpdateQuantity(ctx context.Context, c *Cart, p *product.Product, v *product.Variant, qty int, addressID int64) (int, error) {
	if qty <= 0 || !p.Sellable() {
		return Rejected, nil
	}

	key := Key{ProductID: p.ID}
	if v != nil {
		key.VariantID = v.ID
	}

	line, exists := c.Line(key)
	total := qty
	if exists {
		total += line.Quantity
	}
	if total < product.MinimalQuantity(p, v) {
		return BelowMinimum, nil
	}

	if exists {
		line.Quantity = total
	} else {
		calc, err := s.taxes.ForProduct(ctx, p.ID, addressID)
		if err != nil {
			return Rejected, errors.Wrapf(err, "product #%d tax", p.ID)
		}
		c.Lines = append(c.Lines, Line{
			ProductID: key.ProductID,
			VariantID: key.VariantID,
			Quantity:  qty,
			Name:      p.Name,
			BasePrice: product.UnitPrice(p, v),
			Weight:    product.UnitWeight(p, v),
			Tax:       calc,
			AddedAt:   s.now(),
		})
		line = &c.Lines[len(c.Lines)-1]
	}

	if err := s.carts.SaveLine(ctx, c.ID, *line); err != nil {
		return Rejected, errors.Wrap(err, "save cart line")
	}
	return Updated, nil
}

// SetPriceOverride pins the unit prices of a product/variant within the
// cart. It is a no-op when neither price is given.
func (s *Service) SetPriceOverride(ctx context.Context, c *Cart, o Override) error {
	if o.TaxExcl == nil && o.TaxIncl == nil {
		return nil
	}

	key := Key{ProductID: o.ProductID, VariantID: o.VariantID}
	var calc tax.Calculator
	if line, ok := c.Line(key); ok {
		calc = line.Tax
	}

	override := PriceOverride{ProductID: o.ProductID, VariantID: o.VariantID}
	switch {
	case o.TaxExcl != nil && o.TaxIncl != nil:
		override.TaxExcl = *o.TaxExcl
		override.TaxIncl = *o.TaxIncl
	case o.TaxExcl != nil:
		override.TaxExcl = *o.TaxExcl
		override.TaxIncl = calc.AddTaxes(*o.TaxExcl)
	default:
		override.TaxIncl = *o.TaxIncl
		override.TaxExcl = calc.RemoveTaxes(*o.TaxIncl)
	}

	if err := s.carts.SavePriceOverride(ctx, c.ID, override); err != nil {
		return errors.Wrap(err, "save price override")
	}
	if c.Overrides == nil {
		c.Overrides = make(map[Key]PriceOverride)
	}
	c.Overrides[key] = override
	return nil
}

// AddRule attaches a persisted discount rule to the cart.
func (s *Service) AddRule(ctx context.Context, c *Cart, rule *discount.Rule) error {
	if err := s.carts.AddRule(ctx, c.ID, rule.ID); err != nil {
		return errors.Wrapf(err, "attach rule #%d", rule.ID)
	}
	c.Rules = append(c.Rules, *rule)
	return nil
}
