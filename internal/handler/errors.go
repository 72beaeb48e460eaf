package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-backoffice/internal/domain/invoice"
	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
	"github.com/xenking/kart-backoffice/internal/domain/product"
	"github.com/xenking/kart-backoffice/pkg/httpmiddleware"
)

// apiError is an error response. extra appends fields after code and
// message.
type apiError struct {
	status  int
	message string
	extra   func(e *jx.Encoder)
}

func (a apiError) write(w http.ResponseWriter) {
	if a.extra == nil {
		httpmiddleware.WriteError(w, a.status, a.message)
		return
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(a.status)
	e.FieldStart("message")
	e.Str(a.message)
	a.extra(&e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(a.status)
	_, _ = w.Write(e.Bytes())
}

// mapError converts domain errors to API errors. ok is false for errors the
// client cannot act on.
func mapError(err error) (apiError, bool) {
	var (
		dupInvoice *orderedit.DuplicateProductInInvoiceError
		outOfStock *orderedit.ProductOutOfStockError
		minimum    *orderedit.MinimumQuantityError
		cannotDel  *product.CannotDeleteError
	)
	switch {
	case errors.Is(err, orderedit.ErrInvalidQuantity):
		return apiError{status: http.StatusBadRequest, message: orderedit.ErrInvalidQuantity.Error()}, true

	case errors.Is(err, order.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: order.ErrNotFound.Error()}, true
	case errors.Is(err, product.ErrVariantNotFound):
		return apiError{status: http.StatusNotFound, message: product.ErrVariantNotFound.Error()}, true
	case errors.Is(err, product.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: product.ErrNotFound.Error()}, true
	case errors.Is(err, invoice.ErrNotFound):
		return apiError{status: http.StatusNotFound, message: invoice.ErrNotFound.Error()}, true

	case errors.Is(err, orderedit.ErrOrderAlreadyShipped), errors.Is(err, orderedit.ErrDuplicateProductInOrder):
		return apiError{status: http.StatusConflict, message: rootMessage(err)}, true
	case errors.As(err, &dupInvoice):
		return apiError{
			status:  http.StatusConflict,
			message: dupInvoice.Error(),
			extra: func(e *jx.Encoder) {
				e.FieldStart("invoice_number")
				e.Str(dupInvoice.InvoiceNumber)
			},
		}, true

	case errors.As(err, &outOfStock):
		return apiError{status: http.StatusUnprocessableEntity, message: outOfStock.Error()}, true
	case errors.As(err, &minimum):
		return apiError{
			status:  http.StatusUnprocessableEntity,
			message: minimum.Error(),
			extra: func(e *jx.Encoder) {
				e.FieldStart("minimum")
				e.Int(minimum.Minimum)
			},
		}, true
	case errors.As(err, &cannotDel):
		return apiError{status: http.StatusUnprocessableEntity, message: cannotDel.Error()}, true
	}
	return apiError{}, false
}

// rootMessage returns the message of the sentinel at the bottom of the
// wrap chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeDomainError writes the API error for err, logging and hiding
// unexpected failures.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := mapError(err); ok {
		apiErr.write(w)
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
}

func badRequest(w http.ResponseWriter, message string) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, message)
}
