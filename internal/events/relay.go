package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/kart-backoffice/internal/domain/order"
)

// Record is an event waiting in the outbox.
type Record struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// NewOrderEditedRecord builds the outbox record of e.
func NewOrderEditedRecord(topic string, e order.Edited) Record {
	return Record{
		EventID:   e.ID.String(),
		Topic:     topic,
		Key:       orderKey(e.OrderID),
		Payload:   EncodeOrderEdited(e),
		CreatedAt: e.OccurredAt,
	}
}

// OutboxStore reads pending records and acknowledges delivered ones.
type OutboxStore interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// Transactor runs fn in one storage transaction carried by ctx.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MessageWriter is the subset of kafka.Writer used by the relay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

var _ MessageWriter = (*kafka.Writer)(nil)

// NewWriter creates a Kafka writer for the given brokers. Messages carry
// their own topic.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// RelayConfig controls outbox polling.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay forwards outbox records to Kafka. Delivery is at least once: a
// record written but not marked is sent again on the next tick. Each batch
// holds its records locked in one transaction, so several relays may poll
// the same outbox.
type Relay struct {
	store    OutboxStore
	tx       Transactor
	writer   MessageWriter
	interval time.Duration
	batch    int
	now      func() time.Time

	lastFlush atomic.Int64 // unix nanos of the last successful flush
}

// NewRelay creates a relay.
func NewRelay(store OutboxStore, tx Transactor, writer MessageWriter, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		store:    store,
		tx:       tx,
		writer:   writer,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		now:      time.Now,
	}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				lg.Warn("Outbox relay failed", zap.Error(err), zap.Int("sent", n))
				continue
			}
			r.lastFlush.Store(r.now().UnixNano())
			if n > 0 {
				lg.Debug("Outbox relayed", zap.Int("sent", n))
			}
		}
	}
}

// LastFlush returns when the relay last drained a batch without error. It is
// zero until the first successful flush.
func (r *Relay) LastFlush() time.Time {
	ns := r.lastFlush.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Flush sends one batch of pending records and returns how many were
// acknowledged. A write failure ends the batch but keeps the records
// already acknowledged; a failure to acknowledge rolls the batch back.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var (
		sent     int
		writeErr error
	)
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		sent, err = r.flush(ctx)
		var we *writeError
		if errors.As(err, &we) {
			writeErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent, writeErr
}

type writeError struct {
	id  int64
	err error
}

func (e *writeError) Error() string {
	return fmt.Sprintf("write record #%d: %v", e.id, e.err)
}

func (e *writeError) Unwrap() error {
	return e.err
}

func (r *Relay) flush(ctx context.Context) (int, error) {
	records, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}

	sent := 0
	for _, rec := range records {
		msg := kafka.Message{
			Topic: rec.Topic,
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(rec.EventID)},
			},
			Time: r.now().UTC(),
		}
		if err := r.writer.WriteMessages(ctx, msg); err != nil {
			return sent, &writeError{id: rec.ID, err: err}
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, errors.Wrapf(err, "mark record #%d sent", rec.ID)
		}
		sent++
	}
	return sent, nil
}
