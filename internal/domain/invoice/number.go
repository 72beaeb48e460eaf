package invoice

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// DefaultPrefix is prepended to formatted invoice numbers.
const DefaultPrefix = "#IN"

const numberPadding = 6

// CounterRepository allocates sequential values per named counter.
type CounterRepository interface {
	// Next increments the counter and returns its new value. A missing
	// counter starts at 1.
	Next(ctx context.Context, name string) (int64, error)
}

// Numberer allocates and formats invoice numbers.
type Numberer struct {
	counters CounterRepository
	prefix   string
}

// NewNumberer creates a numberer. An empty prefix falls back to
// DefaultPrefix.
func NewNumberer(counters CounterRepository, prefix string) *Numberer {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Numberer{counters: counters, prefix: prefix}
}

// CounterName is the counter holding the last invoice number of a shop.
func CounterName(shopID int64) string {
	return fmt.Sprintf("invoice:%d", shopID)
}

// Next allocates the next invoice number of a shop.
func (n *Numberer) Next(ctx context.Context, shopID int64) (int64, error) {
	value, err := n.counters.Next(ctx, CounterName(shopID))
	if err != nil {
		return 0, errors.Wrap(err, "next invoice number")
	}
	return value, nil
}

// Format renders an invoice number for display, e.g. #IN000042.
func (n *Numberer) Format(number int64) string {
	return fmt.Sprintf("%s%0*d", n.prefix, numberPadding, number)
}
