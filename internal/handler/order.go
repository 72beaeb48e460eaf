package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
)

// addProductRequest is the body of POST /api/orders/{orderID}/products.
type addProductRequest struct {
	ProductID    int64
	VariantID    *int64
	Quantity     int
	PriceTaxIncl *decimal.Decimal
	PriceTaxExcl *decimal.Decimal
	InvoiceID    *int64
	FreeShipping bool
}

func (req *addProductRequest) Decode(d *jx.Decoder) error {
	var hasProduct bool
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			hasProduct = true
			req.ProductID, err = d.Int64()
		case "variant_id":
			req.VariantID, err = decodeOptID(d)
		case "quantity":
			req.Quantity, err = d.Int()
		case "price_tax_incl":
			req.PriceTaxIncl, err = decodeOptDecimal(d)
		case "price_tax_excl":
			req.PriceTaxExcl, err = decodeOptDecimal(d)
		case "invoice_id":
			req.InvoiceID, err = decodeOptID(d)
		case "free_shipping":
			req.FreeShipping, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !hasProduct || req.ProductID <= 0 {
		return errors.New("product_id is required")
	}
	return nil
}

func (req *addProductRequest) command(orderID int64) orderedit.AddProductCommand {
	return orderedit.AddProductCommand{
		OrderID:      orderID,
		ProductID:    req.ProductID,
		VariantID:    req.VariantID,
		Quantity:     req.Quantity,
		PriceTaxIncl: req.PriceTaxIncl,
		PriceTaxExcl: req.PriceTaxExcl,
		InvoiceID:    req.InvoiceID,
		FreeShipping: req.FreeShipping,
	}
}

// decodeOptID reads a nullable id. Zero is treated as absent.
func decodeOptID(d *jx.Decoder) (*int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	if err != nil || v == 0 {
		return nil, err
	}
	return &v, nil
}

// decodeOptDecimal reads a nullable amount given as a JSON number or string.
func decodeOptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse amount %q", raw)
	}
	if v.IsNegative() {
		return nil, errors.Errorf("amount %s is negative", raw)
	}
	return &v, nil
}

// AddProduct adds a product line to a placed order.
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req addProductRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	res, err := h.orders.AddProduct(r.Context(), req.command(orderID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(orderID)
	e.FieldStart("line_id")
	e.Int64(res.LineID)
	e.FieldStart("invoice_id")
	if res.InvoiceID == 0 {
		e.Null()
	} else {
		e.Int64(res.InvoiceID)
	}
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// pathID parses a positive id URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

type decoder interface {
	Decode(d *jx.Decoder) error
}

func decodeBody(w http.ResponseWriter, r *http.Request, v decoder) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read")
	}
	if len(data) == 0 {
		return errors.New("empty body")
	}
	return v.Decode(jx.DecodeBytes(data))
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
