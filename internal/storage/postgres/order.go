package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/order"
)

const (
	getOrderByIDSQL = `SELECT o.id, o.reference, o.shop_id, o.customer_id, o.cart_id, o.carrier_id,
			o.currency_id, cur.iso_code, o.invoice_address_id, o.delivery_address_id,
			s.id, s.name, s.shipped, s.cancelled, s.error,
			o.total_paid_tax_excl, o.total_paid_tax_incl,
			o.total_products_tax_excl, o.total_products_tax_incl,
			o.total_shipping_tax_excl, o.total_shipping_tax_incl,
			o.total_wrapping_tax_excl, o.total_wrapping_tax_incl,
			o.total_discounts_tax_excl, o.total_discounts_tax_incl,
			o.created_at
		FROM orders o
		JOIN order_states s ON s.id = o.state_id
		JOIN currencies cur ON cur.id = o.currency_id
		WHERE o.id = $1`

	listOrderLinesSQL = `SELECT id, order_id, invoice_id, product_id, variant_id, name, quantity,
			unit_price_tax_excl, unit_price_tax_incl, total_tax_excl, total_tax_incl, unit_weight
		FROM order_lines WHERE order_id = $1 ORDER BY id`

	listOrderLineTaxesSQL = `SELECT t.line_id, t.rate_id, t.unit_amount, t.total_amount
		FROM order_line_taxes t
		JOIN order_lines l ON l.id = t.line_id
		WHERE l.order_id = $1
		ORDER BY t.line_id, t.rate_id`

	listOrderInvoiceIDsSQL = `SELECT id FROM order_invoices WHERE order_id = $1 ORDER BY id`

	listOrderCartRulesSQL = `SELECT id, order_id, cart_rule_id, invoice_id, name,
			value_tax_excl, value_tax_incl, free_shipping
		FROM order_cart_rules WHERE order_id = $1 ORDER BY id`

	createOrderLineSQL = `INSERT INTO order_lines (order_id, invoice_id, product_id, variant_id, name, quantity,
			unit_price_tax_excl, unit_price_tax_incl, total_tax_excl, total_tax_incl, unit_weight)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	updateOrderLineSQL = `UPDATE order_lines SET invoice_id = $2, name = $3, quantity = $4,
			unit_price_tax_excl = $5, unit_price_tax_incl = $6,
			total_tax_excl = $7, total_tax_incl = $8, unit_weight = $9
		WHERE id = $1`

	deleteOrderLineTaxesSQL = `DELETE FROM order_line_taxes WHERE line_id = $1`

	insertOrderLineTaxSQL = `INSERT INTO order_line_taxes (line_id, rate_id, unit_amount, total_amount)
		VALUES ($1, $2, $3, $4)`

	addOrderCartRuleSQL = `INSERT INTO order_cart_rules (order_id, cart_rule_id, invoice_id, name,
			value_tax_excl, value_tax_incl, free_shipping)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	updateOrderTotalsSQL = `UPDATE orders SET
			total_paid_tax_excl = $2, total_paid_tax_incl = $3,
			total_products_tax_excl = $4, total_products_tax_incl = $5,
			total_shipping_tax_excl = $6, total_shipping_tax_incl = $7,
			total_wrapping_tax_excl = $8, total_wrapping_tax_incl = $9,
			total_discounts_tax_excl = $10, total_discounts_tax_incl = $11
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads an order with its lines, line taxes, invoice ids and cart
// rules.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	q := conn(ctx, r.pool)

	var (
		o order.Order
		t = &o.Totals
	)
	err := q.QueryRow(ctx, getOrderByIDSQL, id).Scan(
		&o.ID, &o.Reference, &o.ShopID, &o.CustomerID, &o.CartID, &o.CarrierID,
		&o.CurrencyID, &o.CurrencyISO, &o.InvoiceAddressID, &o.DeliveryAddressID,
		&o.State.ID, &o.State.Name, &o.State.Shipped, &o.State.Cancelled, &o.State.Error,
		&t.PaidTaxExcl, &t.PaidTaxIncl,
		&t.ProductsTaxExcl, &t.ProductsTaxIncl,
		&t.ShippingTaxExcl, &t.ShippingTaxIncl,
		&t.WrappingTaxExcl, &t.WrappingTaxIncl,
		&t.DiscountsTaxExcl, &t.DiscountsTaxIncl,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order #%d", id)
	}

	if o.Lines, err = r.lines(ctx, q, id); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, listOrderInvoiceIDsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list invoices of order #%d", id)
	}
	if o.Invoices, err = pgx.CollectRows(rows, pgx.RowTo[int64]); err != nil {
		return nil, errors.Wrapf(err, "scan invoices of order #%d", id)
	}

	rows, err = q.Query(ctx, listOrderCartRulesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "list cart rules of order #%d", id)
	}
	o.CartRules, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.CartRule, error) {
		var (
			cr        order.CartRule
			invoiceID *int64
		)
		err := row.Scan(&cr.ID, &cr.OrderID, &cr.RuleID, &invoiceID, &cr.Name,
			&cr.ValueTaxExcl, &cr.ValueTaxIncl, &cr.FreeShipping)
		cr.InvoiceID = derefID(invoiceID)
		return cr, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan cart rules of order #%d", id)
	}

	return &o, nil
}

func (r *OrderRepository) lines(ctx context.Context, q querier, orderID int64) ([]order.Line, error) {
	rows, err := q.Query(ctx, listOrderLinesSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list lines of order #%d", orderID)
	}
	lines, err := pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, errors.Wrapf(err, "scan lines of order #%d", orderID)
	}

	rows, err = q.Query(ctx, listOrderLineTaxesSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list line taxes of order #%d", orderID)
	}
	taxes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.LineTax, error) {
		var t order.LineTax
		err := row.Scan(&t.LineID, &t.RateID, &t.UnitAmount, &t.TotalAmount)
		return t, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan line taxes of order #%d", orderID)
	}

	byLine := make(map[int64]int, len(lines))
	for i := range lines {
		byLine[lines[i].ID] = i
	}
	for _, t := range taxes {
		if i, ok := byLine[t.LineID]; ok {
			lines[i].Taxes = append(lines[i].Taxes, t)
		}
	}
	return lines, nil
}

// CreateLine stores a new line and sets its ID.
func (r *OrderRepository) CreateLine(ctx context.Context, line *order.Line) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createOrderLineSQL,
		line.OrderID, nullID(line.InvoiceID), line.ProductID, line.VariantID, line.Name, line.Quantity,
		line.UnitPriceTaxExcl, line.UnitPriceTaxIncl, line.TotalTaxExcl, line.TotalTaxIncl, line.UnitWeight,
	).Scan(&line.ID)
	if err != nil {
		return errors.Wrapf(err, "create line of order #%d", line.OrderID)
	}
	return nil
}

// UpdateLine overwrites the prices, quantity and invoice of a line.
func (r *OrderRepository) UpdateLine(ctx context.Context, line *order.Line) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderLineSQL,
		line.ID, nullID(line.InvoiceID), line.Name, line.Quantity,
		line.UnitPriceTaxExcl, line.UnitPriceTaxIncl, line.TotalTaxExcl, line.TotalTaxIncl, line.UnitWeight,
	)
	if err != nil {
		return errors.Wrapf(err, "update order line #%d", line.ID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("order line #%d not found", line.ID)
	}
	return nil
}

// SaveLineTaxes replaces the tax breakdown of a line.
func (r *OrderRepository) SaveLineTaxes(ctx context.Context, lineID int64, taxes []order.LineTax) error {
	b := &pgx.Batch{}
	b.Queue(deleteOrderLineTaxesSQL, lineID)
	for _, t := range taxes {
		b.Queue(insertOrderLineTaxSQL, lineID, t.RateID, t.UnitAmount, t.TotalAmount)
	}
	if err := sendBatch(ctx, conn(ctx, r.pool), b); err != nil {
		return errors.Wrapf(err, "save taxes of order line #%d", lineID)
	}
	return nil
}

// AddCartRule stores a cart rule copy and sets its ID.
func (r *OrderRepository) AddCartRule(ctx context.Context, rule *order.CartRule) error {
	err := conn(ctx, r.pool).QueryRow(ctx, addOrderCartRuleSQL,
		rule.OrderID, rule.RuleID, nullID(rule.InvoiceID), rule.Name,
		rule.ValueTaxExcl, rule.ValueTaxIncl, rule.FreeShipping,
	).Scan(&rule.ID)
	if err != nil {
		return errors.Wrapf(err, "add cart rule #%d to order #%d", rule.RuleID, rule.OrderID)
	}
	return nil
}

// UpdateTotals overwrites the amounts of an order.
func (r *OrderRepository) UpdateTotals(ctx context.Context, orderID int64, t order.Totals) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderTotalsSQL, orderID,
		t.PaidTaxExcl, t.PaidTaxIncl,
		t.ProductsTaxExcl, t.ProductsTaxIncl,
		t.ShippingTaxExcl, t.ShippingTaxIncl,
		t.WrappingTaxExcl, t.WrappingTaxIncl,
		t.DiscountsTaxExcl, t.DiscountsTaxIncl,
	)
	if err != nil {
		return errors.Wrapf(err, "update totals of order #%d", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l         order.Line
		invoiceID *int64
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &invoiceID, &l.ProductID, &l.VariantID, &l.Name, &l.Quantity,
		&l.UnitPriceTaxExcl, &l.UnitPriceTaxIncl, &l.TotalTaxExcl, &l.TotalTaxIncl, &l.UnitWeight,
	)
	if err != nil {
		return order.Line{}, err
	}
	l.InvoiceID = derefID(invoiceID)
	return l, nil
}
