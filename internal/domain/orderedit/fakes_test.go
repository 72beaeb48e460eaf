package orderedit

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
	"github.com/xenking/kart-backoffice/internal/domain/discount"
	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/stock"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

// --- Mock implementations ---

// recorder keeps the order of side effects across fakes.
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) index(call string) int {
	return slices.Index(r.calls, call)
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeOrders struct {
	rec        *recorder
	orders     map[int64]*order.Order
	nextLineID int64
	created    []order.Line
	updated    []order.Line
	lineTaxes  map[int64][]order.LineTax
	cartRules  []order.CartRule
	totals     map[int64]order.Totals
	createErr  error
}

func (f *fakeOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	f.rec.add("order.get")
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	clone := *o
	clone.Lines = slices.Clone(o.Lines)
	clone.Invoices = slices.Clone(o.Invoices)
	clone.CartRules = slices.Clone(o.CartRules)
	return &clone, nil
}

func (f *fakeOrders) CreateLine(_ context.Context, line *order.Line) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextLineID++
	line.ID = f.nextLineID
	f.created = append(f.created, *line)
	f.rec.add("order.line.create")
	return nil
}

func (f *fakeOrders) UpdateLine(_ context.Context, line *order.Line) error {
	f.updated = append(f.updated, *line)
	f.rec.add("order.line.update #%d", line.ID)
	return nil
}

func (f *fakeOrders) SaveLineTaxes(_ context.Context, lineID int64, taxes []order.LineTax) error {
	if f.lineTaxes == nil {
		f.lineTaxes = make(map[int64][]order.LineTax)
	}
	f.lineTaxes[lineID] = taxes
	f.rec.add("order.line.taxes")
	return nil
}

func (f *fakeOrders) AddCartRule(_ context.Context, rule *order.CartRule) error {
	rule.ID = int64(len(f.cartRules) + 1)
	f.cartRules = append(f.cartRules, *rule)
	f.rec.add("order.cart_rule.add")
	return nil
}

func (f *fakeOrders) UpdateTotals(_ context.Context, orderID int64, totals order.Totals) error {
	if f.totals == nil {
		f.totals = make(map[int64]order.Totals)
	}
	f.totals[orderID] = totals
	f.rec.add("order.totals")
	return nil
}

type fakeProducts struct {
	rec      *recorder
	products map[int64]*product.Product
	variants map[int64]*product.Variant
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	f.rec.add("product.get")
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProducts) GetVariant(_ context.Context, productID, variantID int64) (*product.Variant, error) {
	v, ok := f.variants[variantID]
	if !ok || v.ProductID != productID {
		return nil, product.ErrVariantNotFound
	}
	return v, nil
}

func (f *fakeProducts) Delete(_ context.Context, _ int64) error {
	return nil
}

type fakeStock struct {
	rec       *recorder
	policies  map[int64]stock.OutOfStockPolicy
	available map[cart.Key]int
	adjusted  map[cart.Key]int
	synced    []int64
}

func (f *fakeStock) OutOfStockPolicy(_ context.Context, productID int64) (stock.OutOfStockPolicy, error) {
	f.rec.add("stock.policy")
	return f.policies[productID], nil
}

func (f *fakeStock) AvailableQuantity(_ context.Context, productID, variantID int64) (int, error) {
	qty, ok := f.available[cart.Key{ProductID: productID, VariantID: variantID}]
	if !ok {
		return 100, nil
	}
	return qty, nil
}

func (f *fakeStock) Adjust(_ context.Context, productID, variantID int64, delta int) error {
	if f.adjusted == nil {
		f.adjusted = make(map[cart.Key]int)
	}
	f.adjusted[cart.Key{ProductID: productID, VariantID: variantID}] += delta
	f.rec.add("stock.adjust")
	return nil
}

func (f *fakeStock) Synchronize(_ context.Context, productID int64) error {
	f.synced = append(f.synced, productID)
	f.rec.add("stock.sync")
	return nil
}

type fakeCarts struct {
	rec       *recorder
	carts     map[int64]*cart.Cart
	saved     []cart.Line
	overrides []cart.PriceOverride
	rules     []int64
}

func (f *fakeCarts) GetByOrderID(_ context.Context, orderID int64) (*cart.Cart, error) {
	f.rec.add("cart.get")
	c, ok := f.carts[orderID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	clone := *c
	clone.Lines = slices.Clone(c.Lines)
	clone.Rules = slices.Clone(c.Rules)
	clone.Overrides = maps.Clone(c.Overrides)
	return &clone, nil
}

func (f *fakeCarts) SaveLine(_ context.Context, _ int64, line cart.Line) error {
	f.saved = append(f.saved, line)
	f.rec.add("cart.line.save")
	return nil
}

func (f *fakeCarts) SavePriceOverride(_ context.Context, _ int64, o cart.PriceOverride) error {
	f.overrides = append(f.overrides, o)
	return nil
}

func (f *fakeCarts) AddRule(_ context.Context, _, ruleID int64) error {
	f.rules = append(f.rules, ruleID)
	f.rec.add("cart.rule.add")
	return nil
}

type fakeTaxes struct {
	product tax.Calculator
	carrier tax.Calculator
}

func (f *fakeTaxes) ForCarrier(_ context.Context, _, _ int64) (tax.Calculator, error) {
	return f.carrier, nil
}

func (f *fakeTaxes) ForProduct(_ context.Context, _, _ int64) (tax.Calculator, error) {
	return f.product, nil
}

type fakeInvoices struct {
	rec       *recorder
	invoices  map[int64]*invoice.Invoice
	nextID    int64
	created   []invoice.Invoice
	updated   []invoice.Invoice
	shipments []invoice.CarrierShipment
	weights   map[int64]decimal.Decimal
}

func (f *fakeInvoices) GetByID(_ context.Context, id int64) (*invoice.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (f *fakeInvoices) Create(_ context.Context, inv *invoice.Invoice) error {
	f.nextID++
	inv.ID = f.nextID
	f.created = append(f.created, *inv)
	f.rec.add("invoice.create")
	return nil
}

func (f *fakeInvoices) Update(_ context.Context, inv *invoice.Invoice) error {
	f.updated = append(f.updated, *inv)
	f.rec.add("invoice.update")
	return nil
}

func (f *fakeInvoices) CreateShipment(_ context.Context, s *invoice.CarrierShipment) error {
	s.ID = int64(len(f.shipments) + 1)
	f.shipments = append(f.shipments, *s)
	f.rec.add("invoice.shipment.create")
	return nil
}

func (f *fakeInvoices) UpdateShipmentWeight(_ context.Context, invoiceID int64, weight decimal.Decimal) error {
	if f.weights == nil {
		f.weights = make(map[int64]decimal.Decimal)
	}
	f.weights[invoiceID] = weight
	return nil
}

type fakeCounters struct {
	values map[string]int64
}

func (f *fakeCounters) Next(_ context.Context, name string) (int64, error) {
	f.values[name]++
	return f.values[name], nil
}

type fakeRules struct {
	rec     *recorder
	created []discount.Rule
}

func (f *fakeRules) Create(_ context.Context, rule *discount.Rule) error {
	rule.ID = int64(900 + len(f.created))
	f.created = append(f.created, *rule)
	f.rec.add("rule.create")
	return nil
}

type fakeEvents struct {
	rec       *recorder
	published []order.Edited
}

func (f *fakeEvents) PublishEdited(_ context.Context, e order.Edited) error {
	f.published = append(f.published, e)
	f.rec.add("event.publish")
	return nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

func vat20() tax.Calculator {
	return tax.Calculator{Rates: []tax.Rate{{ID: 1, Name: "VAT", Percent: dec("20")}}}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	rec      *recorder
	tx       *fakeTx
	orders   *fakeOrders
	products *fakeProducts
	stock    *fakeStock
	carts    *fakeCarts
	invoices *fakeInvoices
	counters *fakeCounters
	rules    *fakeRules
	events   *fakeEvents
	cfg      Config
}

// newFixture seeds one EUR order (#1) holding two units of product #5,
// without invoices.
func newFixture() *fixture {
	rec := &recorder{}
	return &fixture{
		rec: rec,
		tx:  &fakeTx{},
		orders: &fakeOrders{
			rec:        rec,
			nextLineID: 100,
			orders: map[int64]*order.Order{
				1: {
					ID:                1,
					ShopID:            1,
					CustomerID:        7,
					CarrierID:         3,
					CurrencyID:        1,
					CurrencyISO:       "EUR",
					InvoiceAddressID:  10,
					DeliveryAddressID: 20,
					Lines: []order.Line{{
						ID: 100, OrderID: 1, ProductID: 5, Name: "Widget", Quantity: 2,
						UnitPriceTaxExcl: dec("10"), UnitPriceTaxIncl: dec("12"),
						TotalTaxExcl: dec("20"), TotalTaxIncl: dec("24"),
						UnitWeight: dec("0.5"),
					}},
				},
			},
		},
		products: &fakeProducts{
			rec: rec,
			products: map[int64]*product.Product{
				5: {ID: 5, Name: "Widget", Price: dec("10"), Weight: dec("0.5"), MinimalQuantity: 1, Active: true, AvailableForOrder: true},
				6: {ID: 6, Name: "Gizmo", Price: dec("3.335"), Weight: dec("0.2"), MinimalQuantity: 1, Active: true, AvailableForOrder: true},
				8: {ID: 8, Name: "Bulk", Price: dec("1"), MinimalQuantity: 3, Active: true, AvailableForOrder: true},
				9: {ID: 9, Name: "Shirt", Price: dec("10"), Weight: dec("0.3"), MinimalQuantity: 1, Active: true, AvailableForOrder: true},
			},
			variants: map[int64]*product.Variant{
				91: {ID: 91, ProductID: 9, Reference: "SHIRT-XL", PriceImpact: dec("2")},
			},
		},
		stock: &fakeStock{
			rec:       rec,
			policies:  map[int64]stock.OutOfStockPolicy{},
			available: map[cart.Key]int{},
		},
		carts: &fakeCarts{
			rec: rec,
			carts: map[int64]*cart.Cart{
				1: {
					ID:          50,
					ShopID:      1,
					OrderID:     1,
					CustomerID:  7,
					CurrencyID:  1,
					CurrencyISO: "EUR",
					Precision:   2,
					Lines: []cart.Line{
						{ProductID: 5, Quantity: 2, Name: "Widget", BasePrice: dec("10"), Weight: dec("0.5")},
					},
					Shipping: dec("5"),
				},
			},
		},
		invoices: &fakeInvoices{rec: rec, invoices: map[int64]*invoice.Invoice{}, nextID: 10},
		counters: &fakeCounters{values: map[string]int64{"invoice:1": 1}},
		rules:    &fakeRules{rec: rec},
		events:   &fakeEvents{rec: rec},
		cfg: Config{
			Pricing: pricing.Defaults{
				Precision: 2,
				Policy:    pricing.RoundItem,
				Mode:      pricing.HalfUp,
			},
			TaxAddress: tax.InvoiceAddress,
		},
	}
}

// invoiced attaches existing invoices to order #1.
func (f *fixture) invoiced(invoices ...*invoice.Invoice) {
	o := f.orders.orders[1]
	for _, inv := range invoices {
		f.invoices.invoices[inv.ID] = inv
		o.Invoices = append(o.Invoices, inv.ID)
	}
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()

	taxes := &fakeTaxes{product: vat20(), carrier: vat20()}
	svc, err := NewService(f.cfg, Deps{
		Tx:             f.tx,
		Orders:         f.orders,
		Products:       f.products,
		Stock:          f.stock,
		Carts:          cart.NewService(f.carts, taxes),
		Invoices:       f.invoices,
		Numbers:        invoice.NewNumberer(f.counters, ""),
		Rules:          f.rules,
		Taxes:          taxes,
		Amounts:        order.NewAmountUpdater(f.orders, f.invoices),
		Events:         f.events,
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}
