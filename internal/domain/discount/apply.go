package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Apply calculates the product discount for the given rule and items.
// It returns ErrNotApplicable when the items do not satisfy the rule's
// minimum item count requirement. Free-shipping rules discount no products.
func Apply(rule *Rule, items []Item) (Discount, error) {
	totalQty := totalQuantity(items)
	if rule.MinItems > 0 && totalQty < rule.MinItems {
		return Discount{}, ErrNotApplicable
	}

	subtotal := calcSubtotal(items)

	switch rule.Type {
	case TypePercentage:
		return applyPercentage(rule, subtotal), nil
	case TypeFixed:
		return applyFixed(rule, subtotal), nil
	case TypeFreeShipping:
		return Discount{Amount: zero, Description: rule.Name}, nil
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.Type)
	}
}

func applyPercentage(rule *Rule, subtotal decimal.Decimal) Discount {
	amount := subtotal.Mul(rule.Value).Div(hundred)
	return Discount{
		Amount:      floorAtZero(amount),
		Description: rule.Name,
	}
}

func applyFixed(rule *Rule, subtotal decimal.Decimal) Discount {
	amount := decimal.Min(rule.Value, subtotal)
	return Discount{
		Amount:      floorAtZero(amount),
		Description: rule.Name,
	}
}

// calcSubtotal returns the sum of price * quantity across all items.
func calcSubtotal(items []Item) decimal.Decimal {
	sum := zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}

// totalQuantity returns the sum of quantities across all items.
func totalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
