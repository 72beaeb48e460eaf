package pricing

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Context carries everything a price or tax computation needs. It is passed
// by value; deriving a new context never affects the one it came from.
type Context struct {
	Currency   string
	CustomerID int64
	CartID     int64
	ShopID     int64
	Precision  int32
	Policy     Policy
	Mode       Mode
}

// Defaults holds the shop-wide pricing configuration a Context starts from.
type Defaults struct {
	Precision int32
	Policy    Policy
	Mode      Mode
}

// NewContext builds the context for a customer paying in the given ISO
// currency.
func (d Defaults) NewContext(iso string, customerID, shopID int64) (Context, error) {
	unit, err := currency.ParseISO(strings.ToUpper(iso))
	if err != nil {
		return Context{}, errors.Wrapf(err, "parse currency %q", iso)
	}
	return Context{
		Currency:   unit.String(),
		CustomerID: customerID,
		ShopID:     shopID,
		Precision:  d.Precision,
		Policy:     d.Policy,
		Mode:       d.Mode,
	}, nil
}

// WithCart returns a copy of c bound to a cart. The cart computing
// precision replaces the session precision.
func (c Context) WithCart(cartID int64, precision int32) Context {
	c.CartID = cartID
	c.Precision = precision
	return c
}

// Round rounds d with the context precision and mode.
func (c Context) Round(d decimal.Decimal) decimal.Decimal {
	return Round(d, c.Precision, c.Mode)
}

// LineTotal computes unit * qty with the context policy.
func (c Context) LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return LineTotal(c.Policy, unit, qty, c.Precision, c.Mode)
}

// PrecisionFor returns the standard number of decimal places for an ISO
// currency code, falling back to 2 for unknown codes.
func PrecisionFor(iso string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(iso))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}
