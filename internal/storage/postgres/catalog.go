package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

const (
	upsertCurrencySQL = `INSERT INTO currencies (iso_code, precision) VALUES ($1, $2)
		ON CONFLICT (iso_code) DO UPDATE SET precision = EXCLUDED.precision
		RETURNING id`

	upsertTaxGroupSQL = `INSERT INTO tax_rule_groups (name, method) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET method = EXCLUDED.method
		RETURNING id`

	upsertTaxRateSQL = `INSERT INTO tax_rates (name, percent) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET percent = EXCLUDED.percent
		RETURNING id`

	deleteTaxRulesSQL = `DELETE FROM tax_rules WHERE group_id = $1`

	insertTaxRuleSQL = `INSERT INTO tax_rules (group_id, country_iso, rate_id, position)
		VALUES ($1, $2, $3, $4)`

	upsertCarrierSQL = `INSERT INTO carriers (name, shipping_cost, tax_rule_group_id) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET shipping_cost = EXCLUDED.shipping_cost, tax_rule_group_id = EXCLUDED.tax_rule_group_id
		RETURNING id`

	upsertProductSQL = `INSERT INTO products (name, reference, price, minimal_quantity, weight,
			active, available_for_order, out_of_stock, tax_rule_group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reference) WHERE reference <> '' DO UPDATE
		SET name = EXCLUDED.name,
			price = EXCLUDED.price,
			minimal_quantity = EXCLUDED.minimal_quantity,
			weight = EXCLUDED.weight,
			active = EXCLUDED.active,
			available_for_order = EXCLUDED.available_for_order,
			out_of_stock = EXCLUDED.out_of_stock,
			tax_rule_group_id = EXCLUDED.tax_rule_group_id
		RETURNING id`

	upsertVariantSQL = `INSERT INTO product_variants (product_id, reference, minimal_quantity, price_impact, weight_impact)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, reference) WHERE reference <> '' DO UPDATE
		SET minimal_quantity = EXCLUDED.minimal_quantity,
			price_impact = EXCLUDED.price_impact,
			weight_impact = EXCLUDED.weight_impact
		RETURNING id`
)

// TaxRule binds a rate to a country inside a tax rule group. Rules apply in
// slice order.
type TaxRule struct {
	CountryISO string
	RateName   string
	Percent    decimal.Decimal
}

// CatalogRepository writes reference data keyed by natural keys, so loading
// the same catalog twice updates rows in place.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// UpsertCurrency stores a currency and returns its id.
func (r *CatalogRepository) UpsertCurrency(ctx context.Context, iso string, precision int32) (int64, error) {
	var id int64
	if err := conn(ctx, r.pool).QueryRow(ctx, upsertCurrencySQL, iso, precision).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "upsert currency %s", iso)
	}
	return id, nil
}

// UpsertTaxGroup stores a tax rule group and replaces its rules.
func (r *CatalogRepository) UpsertTaxGroup(ctx context.Context, name string, method tax.Method, rules []TaxRule) (int64, error) {
	q := conn(ctx, r.pool)

	var id int64
	if err := q.QueryRow(ctx, upsertTaxGroupSQL, name, int16(method)).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "upsert tax group %q", name)
	}

	rateIDs := make([]int64, len(rules))
	for i, rule := range rules {
		if err := q.QueryRow(ctx, upsertTaxRateSQL, rule.RateName, rule.Percent).Scan(&rateIDs[i]); err != nil {
			return 0, errors.Wrapf(err, "upsert tax rate %q", rule.RateName)
		}
	}

	batch := &pgx.Batch{}
	batch.Queue(deleteTaxRulesSQL, id)
	for i, rule := range rules {
		batch.Queue(insertTaxRuleSQL, id, rule.CountryISO, rateIDs[i], i)
	}
	if err := sendBatch(ctx, q, batch); err != nil {
		return 0, errors.Wrapf(err, "replace rules of tax group %q", name)
	}
	return id, nil
}

// UpsertCarrier stores a carrier and returns its id. A zero taxGroupID
// leaves shipping untaxed.
func (r *CatalogRepository) UpsertCarrier(ctx context.Context, name string, cost decimal.Decimal, taxGroupID int64) (int64, error) {
	var id int64
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCarrierSQL, name, cost, nullID(taxGroupID)).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert carrier %q", name)
	}
	return id, nil
}

// UpsertProduct stores a product keyed by its reference and sets its ID.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *product.Product, taxGroupID int64) error {
	if p.Reference == "" {
		return errors.Errorf("product %q has no reference", p.Name)
	}
	err := conn(ctx, r.pool).QueryRow(ctx, upsertProductSQL,
		p.Name, p.Reference, p.Price, p.MinimalQuantity, p.Weight,
		p.Active, p.AvailableForOrder, int16(p.OutOfStock), nullID(taxGroupID),
	).Scan(&p.ID)
	if err != nil {
		return errors.Wrapf(err, "upsert product %s", p.Reference)
	}
	return nil
}

// UpsertVariant stores a variant keyed by product and reference and sets its
// ID.
func (r *CatalogRepository) UpsertVariant(ctx context.Context, v *product.Variant) error {
	if v.Reference == "" {
		return errors.Errorf("variant of product #%d has no reference", v.ProductID)
	}
	err := conn(ctx, r.pool).QueryRow(ctx, upsertVariantSQL,
		v.ProductID, v.Reference, v.MinimalQuantity, v.PriceImpact, v.WeightImpact,
	).Scan(&v.ID)
	if err != nil {
		return errors.Wrapf(err, "upsert variant %s", v.Reference)
	}
	return nil
}
