package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// --- Mock implementations ---

type mockRepo struct {
	cart      *Cart
	getErr    error
	saved     []Line
	overrides []PriceOverride
	rules     []int64
	saveErr   error
}

func (m *mockRepo) GetByOrderID(_ context.Context, _ int64) (*Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.cart, nil
}

func (m *mockRepo) SaveLine(_ context.Context, _ int64, line Line) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, line)
	return nil
}

func (m *mockRepo) SavePriceOverride(_ context.Context, _ int64, o PriceOverride) error {
	m.overrides = append(m.overrides, o)
	return m.saveErr
}

func (m *mockRepo) AddRule(_ context.Context, _ int64, ruleID int64) error {
	m.rules = append(m.rules, ruleID)
	return m.saveErr
}

type mockTaxes struct {
	product tax.Calculator
	carrier tax.Calculator
	calls   int
	err     error
}

func (m *mockTaxes) ForCarrier(_ context.Context, _, _ int64) (tax.Calculator, error) {
	return m.carrier, m.err
}

func (m *mockTaxes) ForProduct(_ context.Context, _, _ int64) (tax.Calculator, error) {
	m.calls++
	return m.product, m.err
}

// --- Helpers ---

func newTestService(repo *mockRepo, taxes *mockTaxes) *Service {
	svc := NewService(repo, taxes)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func sellable(id int64, minimal int) *product.Product {
	return &product.Product{
		ID:                id,
		Name:              "Widget",
		Price:             dec("10"),
		Weight:            dec("0.5"),
		MinimalQuantity:   minimal,
		Active:            true,
		AvailableForOrder: true,
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// --- Tests ---

func TestForOrder_ResolvesTaxes(t *testing.T) {
	repo := &mockRepo{cart: &Cart{
		ID: 1,
		Lines: []Line{
			{ProductID: 10, Quantity: 1, BasePrice: dec("10")},
			{ProductID: 10, VariantID: 2, Quantity: 1, BasePrice: dec("11")},
			{ProductID: 20, Quantity: 1, BasePrice: dec("5")},
		},
	}}
	taxes := &mockTaxes{product: vat("20"), carrier: vat("10")}

	c, err := newTestService(repo, taxes).ForOrder(context.Background(), 7, 3, 4)
	require.NoError(t, err)

	assert.Equal(t, 2, taxes.calls, "calculators are resolved once per product")
	for _, l := range c.Lines {
		assertDecimal(t, "20", l.Tax.TotalRate())
	}
	assertDecimal(t, "10", c.ShippingTax.TotalRate())
}

func TestForOrder_NotFound(t *testing.T) {
	repo := &mockRepo{getErr: ErrNotFound}

	_, err := newTestService(repo, &mockTaxes{}).ForOrder(context.Background(), 7, 3, 4)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestForOrder_TaxError(t *testing.T) {
	repo := &mockRepo{cart: &Cart{Lines: []Line{{ProductID: 10, Quantity: 1}}}}
	taxes := &mockTaxes{err: errors.New("no tax rules")}

	_, err := newTestService(repo, taxes).ForOrder(context.Background(), 7, 3, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product #10 tax")
}

func TestUpdateQuantity(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		product  *product.Product
		variant  *product.Variant
		qty      int
		want     int
		wantQty  int
		wantSave bool
	}{
		{
			name:     "new line",
			product:  sellable(10, 1),
			qty:      2,
			want:     Updated,
			wantQty:  2,
			wantSave: true,
		},
		{
			name:     "existing line is incremented",
			lines:    []Line{{ProductID: 10, Quantity: 3}},
			product:  sellable(10, 1),
			qty:      2,
			want:     Updated,
			wantQty:  5,
			wantSave: true,
		},
		{
			name:    "below product minimum",
			product: sellable(10, 3),
			qty:     1,
			want:    BelowMinimum,
		},
		{
			name:    "variant minimum takes precedence",
			product: sellable(10, 1),
			variant: &product.Variant{ID: 2, ProductID: 10, MinimalQuantity: 4},
			qty:     3,
			want:    BelowMinimum,
		},
		{
			name:     "minimum reached with existing quantity",
			lines:    []Line{{ProductID: 10, Quantity: 2}},
			product:  sellable(10, 3),
			qty:      1,
			want:     Updated,
			wantQty:  3,
			wantSave: true,
		},
		{
			name: "inactive product",
			product: &product.Product{
				ID: 10, Active: false, AvailableForOrder: true,
			},
			qty:  1,
			want: Rejected,
		},
		{
			name:    "zero quantity",
			product: sellable(10, 1),
			qty:     0,
			want:    Rejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			c := &Cart{ID: 1, Lines: tt.lines}

			got, err := newTestService(repo, &mockTaxes{product: vat("20")}).
				UpdateQuantity(context.Background(), c, tt.product, tt.variant, tt.qty, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			if !tt.wantSave {
				assert.Empty(t, repo.saved)
				return
			}
			require.Len(t, repo.saved, 1)
			assert.Equal(t, tt.wantQty, repo.saved[0].Quantity)
			line, ok := c.Line(Key{ProductID: tt.product.ID})
			require.True(t, ok)
			assert.Equal(t, tt.wantQty, line.Quantity)
		})
	}
}

func TestUpdateQuantity_NewVariantLine(t *testing.T) {
	repo := &mockRepo{}
	c := &Cart{ID: 1}
	v := &product.Variant{ID: 2, ProductID: 10, PriceImpact: dec("1.5"), WeightImpact: dec("0.1")}

	got, err := newTestService(repo, &mockTaxes{product: vat("20")}).
		UpdateQuantity(context.Background(), c, sellable(10, 1), v, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, Updated, got)

	line, ok := c.Line(Key{ProductID: 10, VariantID: 2})
	require.True(t, ok)
	assertDecimal(t, "11.5", line.BasePrice)
	assertDecimal(t, "0.6", line.Weight)
	assertDecimal(t, "20", line.Tax.TotalRate())
	assert.False(t, line.AddedAt.IsZero())
}

func TestUpdateQuantity_SaveError(t *testing.T) {
	repo := &mockRepo{saveErr: errors.New("connection refused")}

	_, err := newTestService(repo, &mockTaxes{}).
		UpdateQuantity(context.Background(), &Cart{ID: 1}, sellable(10, 1), nil, 1, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save cart line")
}

func TestSetPriceOverride(t *testing.T) {
	tests := []struct {
		name     string
		override Override
		wantExcl string
		wantIncl string
	}{
		{
			name:     "tax excluded derives tax included",
			override: Override{ProductID: 10, TaxExcl: ptr(dec("8"))},
			wantExcl: "8",
			wantIncl: "9.6",
		},
		{
			name:     "tax included derives tax excluded",
			override: Override{ProductID: 10, TaxIncl: ptr(dec("12"))},
			wantExcl: "10",
			wantIncl: "12",
		},
		{
			name:     "both given are kept",
			override: Override{ProductID: 10, TaxExcl: ptr(dec("8")), TaxIncl: ptr(dec("9"))},
			wantExcl: "8",
			wantIncl: "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			c := &Cart{ID: 1, Lines: []Line{{ProductID: 10, Quantity: 1, Tax: vat("20")}}}

			err := newTestService(repo, &mockTaxes{}).SetPriceOverride(context.Background(), c, tt.override)
			require.NoError(t, err)

			require.Len(t, repo.overrides, 1)
			got := c.Overrides[Key{ProductID: 10}]
			assertDecimal(t, tt.wantExcl, got.TaxExcl)
			assertDecimal(t, tt.wantIncl, got.TaxIncl)
		})
	}
}

func TestSetPriceOverride_NoPrices(t *testing.T) {
	repo := &mockRepo{}
	c := &Cart{ID: 1}

	err := newTestService(repo, &mockTaxes{}).SetPriceOverride(context.Background(), c, Override{ProductID: 10})
	require.NoError(t, err)
	assert.Empty(t, repo.overrides)
	assert.Nil(t, c.Overrides)
}

func TestAddRule(t *testing.T) {
	repo := &mockRepo{}
	c := &Cart{ID: 1}
	rule := &discount.Rule{ID: 42, Type: discount.TypeFreeShipping, Active: true}

	err := newTestService(repo, &mockTaxes{}).AddRule(context.Background(), c, rule)
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, repo.rules)
	assert.True(t, c.FreeShipping())
}
