package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-backoffice/internal/domain/order"
	"github.com/xenking/kart-backoffice/internal/events"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`

	// Rows stay locked until the caller's transaction ends, so concurrent
	// batches skip each other's records.
	fetchPendingOutboxSQL = `SELECT id, event_id::text, topic, key, payload::text, created_at
		FROM outbox WHERE sent_at IS NULL
		ORDER BY id LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = $1`
)

var (
	_ order.EventPublisher = (*OutboxRepository)(nil)
	_ events.OutboxStore   = (*OutboxRepository)(nil)
)

// OutboxRepository stores domain events in the outbox table, in the same
// transaction as the change they describe.
type OutboxRepository struct {
	pool  *pgxpool.Pool
	topic string
}

// NewOutboxRepository returns an OutboxRepository publishing order events
// to topic.
func NewOutboxRepository(pool *pgxpool.Pool, topic string) *OutboxRepository {
	return &OutboxRepository{pool: pool, topic: topic}
}

// PublishEdited appends an order.Edited event to the outbox. Storing the
// same event twice is a no-op.
func (r *OutboxRepository) PublishEdited(ctx context.Context, e order.Edited) error {
	rec := events.NewOrderEditedRecord(r.topic, e)
	_, err := conn(ctx, r.pool).Exec(ctx, insertOutboxSQL,
		rec.EventID, rec.Topic, rec.Key, string(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "store event %s", rec.EventID)
	}
	return nil
}

// FetchPending returns up to limit undelivered records, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]events.Record, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, fetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pending outbox records")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Record, error) {
		var (
			rec     events.Record
			payload string
		)
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &payload, &rec.CreatedAt)
		rec.Payload = []byte(payload)
		return rec, err
	})
}

// MarkSent records the delivery of a record.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, markOutboxSentSQL, id); err != nil {
		return errors.Wrapf(err, "mark outbox record #%d sent", id)
	}
	return nil
}
