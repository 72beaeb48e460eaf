// Package discount defines cart rules: discounts attached to a cart and
// copied onto the order when it is edited.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the subtotal.
	TypeFixed Type = "fixed"
	// TypeFreeShipping waives the shipping cost and discounts no products.
	TypeFreeShipping Type = "free_shipping"
)

// FreeShippingName is the label of generated free-shipping rules.
const FreeShippingName = "[Generated] CartRule for Free Shipping"

// freeShippingValidity is how long a generated free-shipping rule stays valid.
const freeShippingValidity = 24 * time.Hour

// ErrNotApplicable is returned when the items do not satisfy the rule's
// minimum item requirement.
var ErrNotApplicable = errors.New("discount rule not applicable")

// Rule defines a discount and the constraints on its use.
type Rule struct {
	ID              int64
	Name            string
	Code            string
	CustomerID      int64
	CurrencyID      int64
	Type            Type
	Value           decimal.Decimal
	MinItems        int
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	Quantity        int
	QuantityPerUser int
	Active          bool
}

// FreeShipping reports whether the rule waives shipping.
func (r *Rule) FreeShipping() bool {
	return r.Type == TypeFreeShipping
}

// NewFreeShipping creates a single-use free-shipping rule reserved to one
// customer and currency, valid for 24 hours from now.
func NewFreeShipping(customerID, currencyID int64, now time.Time) *Rule {
	from := now
	until := now.Add(freeShippingValidity)
	return &Rule{
		Name:            FreeShippingName,
		CustomerID:      customerID,
		CurrencyID:      currencyID,
		Type:            TypeFreeShipping,
		Value:           decimal.Zero,
		ValidFrom:       &from,
		ValidUntil:      &until,
		Quantity:        1,
		QuantityPerUser: 1,
		Active:          true,
	}
}

// Discount holds a computed discount amount.
type Discount struct {
	Amount      decimal.Decimal
	Description string
}

// Item represents a priced cart line for discount calculation purposes.
type Item struct {
	ProductID int64
	Price     decimal.Decimal
	Quantity  int
}

// Repository persists discount rules.
type Repository interface {
	Create(ctx context.Context, rule *Rule) error
}
