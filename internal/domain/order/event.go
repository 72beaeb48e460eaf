package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Edited is emitted after a product was added to an order.
type Edited struct {
	ID         uuid.UUID
	OrderID    int64
	ProductID  int64
	VariantID  int64
	Quantity   int
	InvoiceID  int64
	LineID     int64
	OccurredAt time.Time
}

// EventPublisher delivers order events.
type EventPublisher interface {
	PublishEdited(ctx context.Context, e Edited) error
}
