// Package events encodes domain events and relays them from the outbox to
// Kafka.
package events

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart-backoffice/internal/domain/order"
)

// TypeOrderEdited is the type tag of order.Edited payloads.
const TypeOrderEdited = "order.edited"

// EncodeOrderEdited renders e as a JSON object.
func EncodeOrderEdited(e order.Edited) []byte {
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("id")
	w.Str(e.ID.String())
	w.FieldStart("type")
	w.Str(TypeOrderEdited)
	w.FieldStart("order_id")
	w.Int64(e.OrderID)
	w.FieldStart("product_id")
	w.Int64(e.ProductID)
	if e.VariantID != 0 {
		w.FieldStart("variant_id")
		w.Int64(e.VariantID)
	}
	w.FieldStart("quantity")
	w.Int(e.Quantity)
	if e.InvoiceID != 0 {
		w.FieldStart("invoice_id")
		w.Int64(e.InvoiceID)
	}
	w.FieldStart("line_id")
	w.Int64(e.LineID)
	w.FieldStart("occurred_at")
	w.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	w.ObjEnd()
	return w.Bytes()
}

// DecodeOrderEdited parses a payload produced by EncodeOrderEdited. Unknown
// fields are skipped.
func DecodeOrderEdited(data []byte) (order.Edited, error) {
	var e order.Edited
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			e.ID, err = uuid.Parse(s)
		case "type":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			if s != TypeOrderEdited {
				return errors.Errorf("unexpected event type %q", s)
			}
		case "order_id":
			e.OrderID, err = d.Int64()
		case "product_id":
			e.ProductID, err = d.Int64()
		case "variant_id":
			e.VariantID, err = d.Int64()
		case "quantity":
			e.Quantity, err = d.Int()
		case "invoice_id":
			e.InvoiceID, err = d.Int64()
		case "line_id":
			e.LineID, err = d.Int64()
		case "occurred_at":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			e.OccurredAt, err = time.Parse(time.RFC3339Nano, s)
		default:
			return d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return order.Edited{}, errors.Wrap(err, "decode order edited")
	}
	return e, nil
}

// orderKey partitions events by order.
func orderKey(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}
