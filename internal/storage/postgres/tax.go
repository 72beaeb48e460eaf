package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

const (
	// Rows carry the group method so an empty result means "no tax".
	productTaxRatesSQL = `SELECT g.method, r.id, r.name, r.percent
		FROM products p
		JOIN tax_rule_groups g ON g.id = p.tax_rule_group_id
		JOIN tax_rules tr ON tr.group_id = g.id
		JOIN tax_rates r ON r.id = tr.rate_id
		JOIN addresses a ON a.country_iso = tr.country_iso
		WHERE p.id = $1 AND a.id = $2
		ORDER BY tr.position, r.id`

	carrierTaxRatesSQL = `SELECT g.method, r.id, r.name, r.percent
		FROM carriers c
		JOIN tax_rule_groups g ON g.id = c.tax_rule_group_id
		JOIN tax_rules tr ON tr.group_id = g.id
		JOIN tax_rates r ON r.id = tr.rate_id
		JOIN addresses a ON a.country_iso = tr.country_iso
		WHERE c.id = $1 AND a.id = $2
		ORDER BY tr.position, r.id`
)

var _ tax.Factory = (*TaxFactory)(nil)

// TaxFactory resolves tax calculators from the rule groups of products and
// carriers and the country of an address.
type TaxFactory struct {
	pool *pgxpool.Pool
}

// NewTaxFactory returns a TaxFactory that uses the given pool.
func NewTaxFactory(pool *pgxpool.Pool) *TaxFactory {
	return &TaxFactory{pool: pool}
}

// ForProduct returns the calculator of a product shipped to addressID.
func (f *TaxFactory) ForProduct(ctx context.Context, productID, addressID int64) (tax.Calculator, error) {
	c, err := f.calculator(ctx, productTaxRatesSQL, productID, addressID)
	if err != nil {
		return tax.Calculator{}, errors.Wrapf(err, "tax rates of product #%d", productID)
	}
	return c, nil
}

// ForCarrier returns the calculator of a carrier shipping to addressID.
func (f *TaxFactory) ForCarrier(ctx context.Context, carrierID, addressID int64) (tax.Calculator, error) {
	c, err := f.calculator(ctx, carrierTaxRatesSQL, carrierID, addressID)
	if err != nil {
		return tax.Calculator{}, errors.Wrapf(err, "tax rates of carrier #%d", carrierID)
	}
	return c, nil
}

func (f *TaxFactory) calculator(ctx context.Context, sql string, id, addressID int64) (tax.Calculator, error) {
	rows, err := conn(ctx, f.pool).Query(ctx, sql, id, addressID)
	if err != nil {
		return tax.Calculator{}, err
	}

	type rateRow struct {
		method int16
		rate   tax.Rate
	}
	rates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rateRow, error) {
		var rr rateRow
		err := row.Scan(&rr.method, &rr.rate.ID, &rr.rate.Name, &rr.rate.Percent)
		return rr, err
	})
	if err != nil {
		return tax.Calculator{}, err
	}

	var c tax.Calculator
	for i, rr := range rates {
		if i == 0 {
			c.Method = tax.Method(rr.method)
		}
		c.Rates = append(c.Rates, rr.rate)
	}
	return c, nil
}
