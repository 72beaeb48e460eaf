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
	productColumns = `id, name, reference, price, minimal_quantity, weight,
		active, available_for_order, out_of_stock`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	listProductIDsSQL = `SELECT id FROM products ORDER BY id`

	getVariantSQL = `SELECT id, product_id, reference, minimal_quantity, price_impact, weight_impact
		FROM product_variants WHERE id = $1 AND product_id = $2`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product #%d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product #%d", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListIDs returns the identifiers of every catalog product.
func (r *ProductRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductIDsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list product ids")
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// GetVariant returns a variant of productID.
func (r *ProductRepository) GetVariant(ctx context.Context, productID, variantID int64) (*product.Variant, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getVariantSQL, variantID, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get variant #%d", variantID)
	}

	v, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (product.Variant, error) {
		var v product.Variant
		err := row.Scan(&v.ID, &v.ProductID, &v.Reference, &v.MinimalQuantity, &v.PriceImpact, &v.WeightImpact)
		return v, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrVariantNotFound
		}
		return nil, errors.Wrapf(err, "get variant #%d", variantID)
	}
	return &v, nil
}

// Delete removes a product with its variants and stock. Products still
// referenced by order lines are kept and reported as
// *product.CannotDeleteError.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &product.CannotDeleteError{ProductID: id, Err: err}
		}
		return errors.Wrapf(err, "delete product #%d", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		outOfStock int16
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Reference, &p.Price, &p.MinimalQuantity, &p.Weight,
		&p.Active, &p.AvailableForOrder, &outOfStock,
	)
	if err != nil {
		return product.Product{}, err
	}
	p.OutOfStock = stock.OutOfStockPolicy(outOfStock)
	return p, nil
}
