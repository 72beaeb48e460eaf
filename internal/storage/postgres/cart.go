package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/cart"
)

const (
	getCartByOrderIDSQL = `SELECT c.id, c.shop_id, o.id, c.customer_id, c.currency_id,
			cur.iso_code, cur.precision, c.gift, c.wrapping_tax_excl, c.wrapping_tax_incl,
			COALESCE(car.shipping_cost, 0)
		FROM orders o
		JOIN carts c ON c.id = o.cart_id
		JOIN currencies cur ON cur.id = c.currency_id
		LEFT JOIN carriers car ON car.id = o.carrier_id
		WHERE o.id = $1`

	listCartLinesSQL = `SELECT l.product_id, l.variant_id, l.quantity, p.name,
			p.price + COALESCE(v.price_impact, 0),
			p.weight + COALESCE(v.weight_impact, 0),
			l.added_at
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		LEFT JOIN product_variants v ON v.id = l.variant_id AND v.product_id = l.product_id
		WHERE l.cart_id = $1
		ORDER BY l.added_at, l.product_id, l.variant_id`

	listCartRulesSQL = `SELECT ` + ruleColumns + `
		FROM cart_cart_rules cr
		JOIN cart_rules r ON r.id = cr.cart_rule_id
		WHERE cr.cart_id = $1
		ORDER BY r.id`

	listCartOverridesSQL = `SELECT product_id, variant_id, price_tax_excl, price_tax_incl
		FROM cart_price_overrides WHERE cart_id = $1`

	saveCartLineSQL = `INSERT INTO cart_lines (cart_id, product_id, variant_id, quantity, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity`

	saveCartOverrideSQL = `INSERT INTO cart_price_overrides (cart_id, product_id, variant_id, price_tax_excl, price_tax_incl)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id, variant_id) DO UPDATE
		SET price_tax_excl = EXCLUDED.price_tax_excl, price_tax_incl = EXCLUDED.price_tax_incl`

	addCartRuleSQL = `INSERT INTO cart_cart_rules (cart_id, cart_rule_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByOrderID loads the cart an order was placed from.
func (r *CartRepository) GetByOrderID(ctx context.Context, orderID int64) (*cart.Cart, error) {
	q := conn(ctx, r.pool)

	c := &cart.Cart{Overrides: make(map[cart.Key]cart.PriceOverride)}
	var precision int16
	err := q.QueryRow(ctx, getCartByOrderIDSQL, orderID).Scan(
		&c.ID, &c.ShopID, &c.OrderID, &c.CustomerID, &c.CurrencyID,
		&c.CurrencyISO, &precision, &c.Gift, &c.Wrapping.TaxExcl, &c.Wrapping.TaxIncl,
		&c.Shipping,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of order #%d", orderID)
	}
	c.Precision = int32(precision)

	rows, err := q.Query(ctx, listCartLinesSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list lines of cart #%d", c.ID)
	}
	c.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.VariantID, &l.Quantity, &l.Name, &l.BasePrice, &l.Weight, &l.AddedAt)
		return l, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan lines of cart #%d", c.ID)
	}

	rows, err = q.Query(ctx, listCartRulesSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list rules of cart #%d", c.ID)
	}
	c.Rules, err = pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, errors.Wrapf(err, "scan rules of cart #%d", c.ID)
	}

	rows, err = q.Query(ctx, listCartOverridesSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list price overrides of cart #%d", c.ID)
	}
	overrides, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.PriceOverride, error) {
		var o cart.PriceOverride
		err := row.Scan(&o.ProductID, &o.VariantID, &o.TaxExcl, &o.TaxIncl)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan price overrides of cart #%d", c.ID)
	}
	for _, o := range overrides {
		c.Overrides[cart.Key{ProductID: o.ProductID, VariantID: o.VariantID}] = o
	}

	return c, nil
}

// SaveLine inserts the line or updates its quantity.
func (r *CartRepository) SaveLine(ctx context.Context, cartID int64, line cart.Line) error {
	_, err := conn(ctx, r.pool).Exec(ctx, saveCartLineSQL,
		cartID, line.ProductID, line.VariantID, line.Quantity, line.AddedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "save line %d/%d of cart #%d", line.ProductID, line.VariantID, cartID)
	}
	return nil
}

// SavePriceOverride inserts or replaces a price override.
func (r *CartRepository) SavePriceOverride(ctx context.Context, cartID int64, o cart.PriceOverride) error {
	_, err := conn(ctx, r.pool).Exec(ctx, saveCartOverrideSQL,
		cartID, o.ProductID, o.VariantID, o.TaxExcl, o.TaxIncl,
	)
	if err != nil {
		return errors.Wrapf(err, "save price override %d/%d of cart #%d", o.ProductID, o.VariantID, cartID)
	}
	return nil
}

// AddRule attaches a discount rule to the cart. Attaching twice is a no-op.
func (r *CartRepository) AddRule(ctx context.Context, cartID, ruleID int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, addCartRuleSQL, cartID, ruleID); err != nil {
		return errors.Wrapf(err, "add rule #%d to cart #%d", ruleID, cartID)
	}
	return nil
}
