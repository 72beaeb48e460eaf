// Package pricing holds the rounding rules and the pricing context used by
// every monetary computation of the order editing workflow.
package pricing

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Policy selects the aggregation level at which monetary values are rounded.
type Policy string

const (
	// RoundItem rounds each unit price before multiplying by the quantity.
	RoundItem Policy = "item"
	// RoundLine rounds each line total (unit price times quantity).
	RoundLine Policy = "line"
	// RoundTotal leaves line totals unrounded; only the grand total is rounded.
	RoundTotal Policy = "total"
)

// Mode is the tie-breaking rule used when a value is rounded.
type Mode string

const (
	// HalfUp rounds ties away from zero.
	HalfUp Mode = "half_up"
	// HalfDown rounds ties towards zero.
	HalfDown Mode = "half_down"
	// HalfEven rounds ties to the nearest even digit.
	HalfEven Mode = "half_even"
	// Up always rounds away from zero.
	Up Mode = "up"
	// Down always rounds towards zero.
	Down Mode = "down"
)

// ParsePolicy converts a configuration value into a Policy. The empty
// string maps to RoundItem.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RoundItem, nil
	case RoundItem, RoundLine, RoundTotal:
		return p, nil
	default:
		return "", errors.Errorf("unknown rounding policy %q", s)
	}
}

// ParseMode converts a configuration value into a Mode. The empty string
// maps to HalfUp.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return HalfUp, nil
	case HalfUp, HalfDown, HalfEven, Up, Down:
		return m, nil
	default:
		return "", errors.Errorf("unknown rounding mode %q", s)
	}
}

// Round rounds d to precision decimal places using mode.
func Round(d decimal.Decimal, precision int32, mode Mode) decimal.Decimal {
	switch mode {
	case HalfDown:
		truncated := d.Truncate(precision)
		half := decimal.New(5, -(precision + 1))
		if d.Sub(truncated).Abs().Equal(half) {
			return truncated
		}
		return d.Round(precision)
	case HalfEven:
		return d.RoundBank(precision)
	case Up:
		return d.RoundUp(precision)
	case Down:
		return d.RoundDown(precision)
	default:
		return d.Round(precision)
	}
}

// LineTotal computes unit * qty under the given policy.
func LineTotal(policy Policy, unit decimal.Decimal, qty int, precision int32, mode Mode) decimal.Decimal {
	q := decimal.NewFromInt(int64(qty))
	switch policy {
	case RoundTotal:
		return unit.Mul(q)
	case RoundLine:
		return Round(unit.Mul(q), precision, mode)
	default:
		return Round(unit, precision, mode).Mul(q)
	}
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
