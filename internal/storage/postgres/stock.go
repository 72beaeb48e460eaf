package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/internal/domain/stock"
)

const (
	getOutOfStockPolicySQL = `SELECT out_of_stock FROM products WHERE id = $1`

	getAvailableQuantitySQL = `SELECT quantity FROM stock_available
		WHERE product_id = $1 AND variant_id = $2`

	adjustStockSQL = `INSERT INTO stock_available (product_id, variant_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, variant_id) DO UPDATE
		SET quantity = stock_available.quantity + EXCLUDED.quantity`

	setStockSQL = `INSERT INTO stock_available (product_id, variant_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity`

	// Products without variants keep their own counter.
	synchronizeStockSQL = `INSERT INTO stock_available (product_id, variant_id, quantity)
		SELECT $1::bigint, 0, COALESCE(SUM(quantity), 0) FROM stock_available
		WHERE product_id = $1::bigint AND variant_id <> 0
		HAVING EXISTS (SELECT 1 FROM product_variants WHERE product_id = $1::bigint)
		ON CONFLICT (product_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity`
)

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

// OutOfStockPolicy returns the out-of-stock policy of a product.
func (r *StockRepository) OutOfStockPolicy(ctx context.Context, productID int64) (stock.OutOfStockPolicy, error) {
	var policy int16
	if err := conn(ctx, r.pool).QueryRow(ctx, getOutOfStockPolicySQL, productID).Scan(&policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Deny, product.ErrNotFound
		}
		return stock.Deny, errors.Wrapf(err, "get out-of-stock policy of product #%d", productID)
	}
	return stock.OutOfStockPolicy(policy), nil
}

// AvailableQuantity returns the available quantity. Missing counters are 0.
func (r *StockRepository) AvailableQuantity(ctx context.Context, productID, variantID int64) (int, error) {
	var qty int
	err := conn(ctx, r.pool).QueryRow(ctx, getAvailableQuantitySQL, productID, variantID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "get stock of product #%d/%d", productID, variantID)
	}
	return qty, nil
}

// Adjust adds delta to the available quantity.
func (r *StockRepository) Adjust(ctx context.Context, productID, variantID int64, delta int) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, adjustStockSQL, productID, variantID, delta); err != nil {
		return errors.Wrapf(err, "adjust stock of product #%d/%d", productID, variantID)
	}
	return nil
}

// SetQuantity overwrites the available quantity.
func (r *StockRepository) SetQuantity(ctx context.Context, productID, variantID int64, qty int) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, setStockSQL, productID, variantID, qty); err != nil {
		return errors.Wrapf(err, "set stock of product #%d/%d", productID, variantID)
	}
	return nil
}

// Synchronize sets the product-level counter to the sum of its variant
// counters.
func (r *StockRepository) Synchronize(ctx context.Context, productID int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, synchronizeStockSQL, productID); err != nil {
		return errors.Wrapf(err, "synchronize stock of product #%d", productID)
	}
	return nil
}
