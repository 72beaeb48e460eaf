package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

const (
	invoiceTotalsColumns = `total_paid_tax_excl, total_paid_tax_incl,
		total_products_tax_excl, total_products_tax_incl,
		total_shipping_tax_excl, total_shipping_tax_incl,
		total_wrapping_tax_excl, total_wrapping_tax_incl`

	getInvoiceByIDSQL = `SELECT id, order_id, number, ` + invoiceTotalsColumns + `,
			shipping_tax_method, created_at
		FROM order_invoices WHERE id = $1`

	listInvoiceShippingTaxesSQL = `SELECT rate_id, amount FROM order_invoice_shipping_taxes
		WHERE invoice_id = $1 ORDER BY rate_id`

	createInvoiceSQL = `INSERT INTO order_invoices (order_id, number, ` + invoiceTotalsColumns + `,
			shipping_tax_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	insertInvoiceShippingTaxSQL = `INSERT INTO order_invoice_shipping_taxes (invoice_id, rate_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (invoice_id, rate_id) DO UPDATE SET amount = EXCLUDED.amount`

	updateInvoiceSQL = `UPDATE order_invoices SET
			total_paid_tax_excl = $2, total_paid_tax_incl = $3,
			total_products_tax_excl = $4, total_products_tax_incl = $5,
			total_shipping_tax_excl = $6, total_shipping_tax_incl = $7,
			total_wrapping_tax_excl = $8, total_wrapping_tax_incl = $9
		WHERE id = $1`

	createShipmentSQL = `INSERT INTO order_carriers (order_id, carrier_id, invoice_id, weight,
			shipping_cost_tax_excl, shipping_cost_tax_incl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	updateShipmentWeightSQL = `UPDATE order_carriers SET weight = $2 WHERE invoice_id = $1`

	nextCounterSQL = `INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`

	// Never moves a counter backwards.
	resetCounterSQL = `INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(counters.value, EXCLUDED.value)`
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// GetByID returns an invoice with its shipping tax breakdown.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	q := conn(ctx, r.pool)

	var (
		inv    invoice.Invoice
		t      = &inv.Totals
		method int16
	)
	err := q.QueryRow(ctx, getInvoiceByIDSQL, id).Scan(
		&inv.ID, &inv.OrderID, &inv.Number,
		&t.PaidTaxExcl, &t.PaidTaxIncl,
		&t.ProductsTaxExcl, &t.ProductsTaxIncl,
		&t.ShippingTaxExcl, &t.ShippingTaxIncl,
		&t.WrappingTaxExcl, &t.WrappingTaxIncl,
		&method, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get invoice #%d", id)
	}
	inv.ShippingTaxMethod = tax.Method(method)

	rows, err := q.Query(ctx, listInvoiceShippingTaxesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list shipping taxes of invoice #%d", id)
	}
	inv.ShippingTaxes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (tax.Amount, error) {
		var a tax.Amount
		err := row.Scan(&a.RateID, &a.Amount)
		return a, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan shipping taxes of invoice #%d", id)
	}
	return &inv, nil
}

// Create stores a new invoice with its shipping taxes and sets its ID.
func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	q := conn(ctx, r.pool)
	t := inv.Totals

	err := q.QueryRow(ctx, createInvoiceSQL,
		inv.OrderID, inv.Number,
		t.PaidTaxExcl, t.PaidTaxIncl,
		t.ProductsTaxExcl, t.ProductsTaxIncl,
		t.ShippingTaxExcl, t.ShippingTaxIncl,
		t.WrappingTaxExcl, t.WrappingTaxIncl,
		int16(inv.ShippingTaxMethod), inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		return errors.Wrapf(err, "create invoice of order #%d", inv.OrderID)
	}

	b := &pgx.Batch{}
	for _, a := range inv.ShippingTaxes {
		b.Queue(insertInvoiceShippingTaxSQL, inv.ID, a.RateID, a.Amount)
	}
	if err := sendBatch(ctx, q, b); err != nil {
		return errors.Wrapf(err, "save shipping taxes of invoice #%d", inv.ID)
	}
	return nil
}

// Update overwrites the totals of an invoice.
func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	t := inv.Totals
	tag, err := conn(ctx, r.pool).Exec(ctx, updateInvoiceSQL, inv.ID,
		t.PaidTaxExcl, t.PaidTaxIncl,
		t.ProductsTaxExcl, t.ProductsTaxIncl,
		t.ShippingTaxExcl, t.ShippingTaxIncl,
		t.WrappingTaxExcl, t.WrappingTaxIncl,
	)
	if err != nil {
		return errors.Wrapf(err, "update invoice #%d", inv.ID)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

// CreateShipment stores a carrier shipment and sets its ID.
func (r *InvoiceRepository) CreateShipment(ctx context.Context, s *invoice.CarrierShipment) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createShipmentSQL,
		s.OrderID, s.CarrierID, nullID(s.InvoiceID), s.Weight,
		s.ShippingCostTaxExcl, s.ShippingCostTaxIncl, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return errors.Wrapf(err, "create shipment of order #%d", s.OrderID)
	}
	return nil
}

// UpdateShipmentWeight sets the weight of the shipment of an invoice.
// Invoices without a shipment are left untouched.
func (r *InvoiceRepository) UpdateShipmentWeight(ctx context.Context, invoiceID int64, weight decimal.Decimal) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, updateShipmentWeightSQL, invoiceID, weight); err != nil {
		return errors.Wrapf(err, "update shipment weight of invoice #%d", invoiceID)
	}
	return nil
}

var _ invoice.CounterRepository = (*CounterRepository)(nil)

// CounterRepository implements invoice.CounterRepository backed by
// PostgreSQL. Increments are serialized by the row lock of the counter.
type CounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository returns a CounterRepository that uses the given pool.
func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// Next increments a counter and returns its new value.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	var value int64
	if err := conn(ctx, r.pool).QueryRow(ctx, nextCounterSQL, name).Scan(&value); err != nil {
		return 0, errors.Wrapf(err, "next value of counter %q", name)
	}
	return value, nil
}

// Reset raises a counter to at least value.
func (r *CounterRepository) Reset(ctx context.Context, name string, value int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, resetCounterSQL, name, value); err != nil {
		return errors.Wrapf(err, "reset counter %q", name)
	}
	return nil
}
