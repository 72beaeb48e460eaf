package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// maxBulkDelete caps the number of ids in one bulk delete.
const maxBulkDelete = 500

type bulkDeleteRequest struct {
	IDs []int64
}

func (req *bulkDeleteRequest) Decode(d *jx.Decoder) error {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "ids" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			id, err := d.Int64()
			if err != nil {
				return err
			}
			if id <= 0 {
				return errors.Errorf("invalid product id %d", id)
			}
			req.IDs = append(req.IDs, id)
			return nil
		})
	})
	if err != nil {
		return err
	}
	switch {
	case len(req.IDs) == 0:
		return errors.New("ids must not be empty")
	case len(req.IDs) > maxBulkDelete:
		return errors.Errorf("at most %d ids per request", maxBulkDelete)
	}
	return nil
}

// DeleteProduct removes a catalog product.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDeleteProducts removes several products, stopping at the first one
// that cannot be deleted.
func (h *Handler) BulkDeleteProducts(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := h.products.BulkDelete(r.Context(), req.IDs); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
