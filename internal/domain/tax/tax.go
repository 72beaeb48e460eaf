// Package tax computes tax amounts from the rules applying to a product or a
// carrier at a given address.
package tax

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Method defines how several rates of one calculator combine.
type Method int

const (
	// Combine sums all rates and applies them once.
	Combine Method = iota
	// OneAfterAnother compounds the rates in order.
	OneAfterAnother
)

// Rate is a single tax rate expressed in percent.
type Rate struct {
	ID      int64
	Name    string
	Percent decimal.Decimal
}

// Amount is the tax collected by one rate.
type Amount struct {
	RateID int64
	Amount decimal.Decimal
}

// Calculator applies a set of rates. The zero value applies no tax.
type Calculator struct {
	Method Method
	Rates  []Rate
}

// TotalRate returns the effective combined rate in percent.
func (c Calculator) TotalRate() decimal.Decimal {
	if c.Method == OneAfterAnother {
		factor := decimal.NewFromInt(1)
		for _, r := range c.Rates {
			factor = factor.Mul(decimal.NewFromInt(1).Add(r.Percent.Div(hundred)))
		}
		return factor.Sub(decimal.NewFromInt(1)).Mul(hundred)
	}
	sum := decimal.Zero
	for _, r := range c.Rates {
		sum = sum.Add(r.Percent)
	}
	return sum
}

// AddTaxes returns the tax-included price.
func (c Calculator) AddTaxes(price decimal.Decimal) decimal.Decimal {
	return price.Mul(c.factor())
}

// RemoveTaxes returns the tax-excluded price.
func (c Calculator) RemoveTaxes(price decimal.Decimal) decimal.Decimal {
	return price.DivRound(c.factor(), 9)
}

// TaxesAmount splits the tax collected on a tax-excluded price per rate.
func (c Calculator) TaxesAmount(price decimal.Decimal) []Amount {
	amounts := make([]Amount, 0, len(c.Rates))
	base := price
	for _, r := range c.Rates {
		amount := base.Mul(r.Percent).Div(hundred)
		amounts = append(amounts, Amount{RateID: r.ID, Amount: amount})
		if c.Method == OneAfterAnother {
			base = base.Add(amount)
		}
	}
	return amounts
}

func (c Calculator) factor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(c.TotalRate().Div(hundred))
}

// AddressKind selects which order address drives tax resolution.
type AddressKind string

const (
	// InvoiceAddress uses the order's invoice address.
	InvoiceAddress AddressKind = "invoice"
	// DeliveryAddress uses the order's delivery address.
	DeliveryAddress AddressKind = "delivery"
)

// ParseAddressKind converts a configuration value into an AddressKind.
func ParseAddressKind(s string) (AddressKind, error) {
	switch k := AddressKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return InvoiceAddress, nil
	case InvoiceAddress, DeliveryAddress:
		return k, nil
	default:
		return "", errors.Errorf("unknown tax address type %q", s)
	}
}

// Factory resolves calculators for products and carriers.
type Factory interface {
	ForCarrier(ctx context.Context, carrierID, addressID int64) (Calculator, error)
	ForProduct(ctx context.Context, productID, addressID int64) (Calculator, error)
}
