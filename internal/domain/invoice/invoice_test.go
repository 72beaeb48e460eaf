package invoice

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCounters struct {
	values map[string]int64
	err    error
}

func (m *mockCounters) Next(_ context.Context, name string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	m.values[name]++
	return m.values[name], nil
}

func TestInvoice_Add(t *testing.T) {
	inv := &Invoice{Totals: Totals{
		PaidTaxIncl:     decimal.RequireFromString("12.00"),
		ProductsTaxIncl: decimal.RequireFromString("10.00"),
	}}

	inv.Add(Totals{
		PaidTaxIncl:     decimal.RequireFromString("6.00"),
		ProductsTaxIncl: decimal.RequireFromString("5.00"),
		ShippingTaxIncl: decimal.RequireFromString("-1.00"),
	})

	assert.True(t, decimal.RequireFromString("18").Equal(inv.PaidTaxIncl))
	assert.True(t, decimal.RequireFromString("15").Equal(inv.ProductsTaxIncl))
	assert.True(t, inv.ShippingTaxIncl.IsZero(), "negative deltas never decrease totals")
}

func TestNumberer(t *testing.T) {
	counters := &mockCounters{}
	n := NewNumberer(counters, "")

	first, err := n.Next(context.Background(), 1)
	require.NoError(t, err)
	second, err := n.Next(context.Background(), 1)
	require.NoError(t, err)
	otherShop, err := n.Next(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(1), otherShop)
}

func TestNumberer_Format(t *testing.T) {
	tests := []struct {
		prefix string
		number int64
		want   string
	}{
		{prefix: "", number: 42, want: "#IN000042"},
		{prefix: "FA", number: 1, want: "FA000001"},
		{prefix: "#IN", number: 1234567, want: "#IN1234567"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, NewNumberer(&mockCounters{}, tt.prefix).Format(tt.number))
		})
	}
}

func TestNumberer_Error(t *testing.T) {
	n := NewNumberer(&mockCounters{err: errors.New("connection refused")}, "")

	_, err := n.Next(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next invoice number")
}
