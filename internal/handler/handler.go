// Package handler implements the back-office HTTP API on top of chi.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-backoffice/internal/domain/auth"
	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
	"github.com/xenking/kart-backoffice/internal/domain/product"
)

// OrderEditor adds products to placed orders.
type OrderEditor interface {
	AddProduct(ctx context.Context, cmd orderedit.AddProductCommand) (*orderedit.Result, error)
}

// ProductDeleter removes catalog products.
type ProductDeleter interface {
	Delete(ctx context.Context, id int64) error
	BulkDelete(ctx context.Context, ids []int64) error
}

var (
	_ OrderEditor    = (*orderedit.Service)(nil)
	_ ProductDeleter = (*product.Deleter)(nil)
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Handler serves the admin API, delegating business logic to the domain
// services.
type Handler struct {
	orders   OrderEditor
	products ProductDeleter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderEditor, products ProductDeleter) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
	}
}

// Routes mounts the API under /api. Every route requires an API key carrying
// the scope of the resource it touches.
func (h *Handler) Routes(r chi.Router, sec *SecurityHandler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.With(RequireScope(auth.ScopeOrdersWrite)).
			Post("/orders/{orderID}/products", h.AddProduct)

		r.Group(func(r chi.Router) {
			r.Use(RequireScope(auth.ScopeCatalogWrite))
			r.Delete("/products/{productID}", h.DeleteProduct)
			r.Post("/products/bulk-delete", h.BulkDeleteProducts)
		})
	})
}
