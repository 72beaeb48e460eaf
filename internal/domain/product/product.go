package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/stock"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a variant does not exist or belongs
	// to another product.
	ErrVariantNotFound = errors.New("product variant not found")
)

// Product represents a catalog item.
type Product struct {
	ID                int64
	Name              string
	Reference         string
	Price             decimal.Decimal // tax excluded
	MinimalQuantity   int
	Weight            decimal.Decimal
	Active            bool
	AvailableForOrder bool
	OutOfStock        stock.OutOfStockPolicy
}

// Variant is a purchasable combination of a product's attributes.
type Variant struct {
	ID              int64
	ProductID       int64
	Reference       string
	MinimalQuantity int
	PriceImpact     decimal.Decimal
	WeightImpact    decimal.Decimal
}

// MinimalQuantity returns the minimum quantity that must be ordered. A
// variant minimum takes precedence over the product minimum.
func MinimalQuantity(p *Product, v *Variant) int {
	minimal := p.MinimalQuantity
	if v != nil {
		minimal = v.MinimalQuantity
	}
	if minimal < 1 {
		return 1
	}
	return minimal
}

// UnitPrice returns the tax-excluded unit price of a product or one of its
// variants.
func UnitPrice(p *Product, v *Variant) decimal.Decimal {
	if v == nil {
		return p.Price
	}
	return p.Price.Add(v.PriceImpact)
}

// UnitWeight returns the weight of a single unit.
func UnitWeight(p *Product, v *Variant) decimal.Decimal {
	if v == nil {
		return p.Weight
	}
	return p.Weight.Add(v.WeightImpact)
}

// Sellable reports whether the product can currently be added to a cart.
func (p *Product) Sellable() bool {
	return p.Active && p.AvailableForOrder
}

// Repository defines operations on the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	GetVariant(ctx context.Context, productID, variantID int64) (*Variant, error)
	Delete(ctx context.Context, id int64) error
}
