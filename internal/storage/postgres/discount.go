package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/discount"
)

const (
	ruleColumns = `r.id, r.name, r.code, r.customer_id, r.currency_id, r.discount_type,
		r.discount_value, r.min_items, r.valid_from, r.valid_until,
		r.quantity, r.quantity_per_user, r.active`

	createRuleSQL = `INSERT INTO cart_rules (name, code, customer_id, currency_id, discount_type,
			discount_value, min_items, valid_from, valid_until, quantity, quantity_per_user, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Create stores a rule and sets its ID.
func (r *DiscountRepository) Create(ctx context.Context, rule *discount.Rule) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createRuleSQL,
		rule.Name, rule.Code, rule.CustomerID, rule.CurrencyID, string(rule.Type),
		rule.Value, rule.MinItems, rule.ValidFrom, rule.ValidUntil,
		rule.Quantity, rule.QuantityPerUser, rule.Active,
	).Scan(&rule.ID)
	if err != nil {
		return errors.Wrapf(err, "create cart rule %q", rule.Name)
	}
	return nil
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		r   discount.Rule
		typ string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Code, &r.CustomerID, &r.CurrencyID, &typ,
		&r.Value, &r.MinItems, &r.ValidFrom, &r.ValidUntil,
		&r.Quantity, &r.QuantityPerUser, &r.Active,
	)
	if err != nil {
		return discount.Rule{}, err
	}
	r.Type = discount.Type(typ)
	return r, nil
}
