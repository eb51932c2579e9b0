package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type appender interface {
	Append(tx *gorm.DB, row *models.OutboxEvent) error
	Queued(tx *gorm.DB, event Event) (bool, error)
}

// Writer queues events inside the caller's transaction so they commit or
// roll back together with the state change they describe.
type Writer struct {
	store appender
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewWriter(store appender, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg, now: time.Now, newID: uuid.New}
}

// Emit appends event to the outbox on tx.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrTxRequired
	}
	if err := event.validate(); err != nil {
		return err
	}
	id := w.newID()
	payload, err := event.envelope(id, w.now())
	if err != nil {
		return err
	}
	row := &models.OutboxEvent{
		ID:            id,
		EventType:     event.Type,
		AggregateType: event.Aggregate,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := w.store.Append(tx, row); err != nil {
		return err
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     id.String(),
			"event_type":   event.Type,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce is Emit unless an event of the same type was already queued for
// the aggregate. Payment callbacks can be delivered more than once.
func (w *Writer) EmitOnce(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrTxRequired
	}
	queued, err := w.store.Queued(tx, event)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}
	return w.Emit(ctx, tx, event)
}
