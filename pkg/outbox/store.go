package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

const maxErrorText = 1024

// ErrNotDeadLettered is returned by Requeue for an event with no dead letter entry.
var ErrNotDeadLettered = errors.New("outbox: event is not dead-lettered")

// Store persists outbox rows and their dead letters.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Append(tx *gorm.DB, row *models.OutboxEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	return tx.Create(row).Error
}

// Queued reports whether an event of the same type already exists for the aggregate.
func (s *Store) Queued(tx *gorm.DB, event Event) (bool, error) {
	if tx == nil {
		return false, ErrTxRequired
	}
	var n int64
	err := tx.Model(&models.OutboxEvent{}).
		Where("aggregate_type = ? AND aggregate_id = ? AND event_type = ?", event.Aggregate, event.AggregateID, event.Type).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// Claim returns up to limit unpublished rows that still have attempts left,
// oldest first. Postgres locks them with SKIP LOCKED so concurrent relays
// never publish the same row.
func (s *Store) Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	q := tx.Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at, id").
		Limit(limit)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	var rows []models.OutboxEvent
	return rows, q.Find(&rows).Error
}

func (s *Store) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return s.update(tx, id, map[string]any{
		"published_at": s.now().UTC(),
		"last_error":   nil,
	})
}

// RecordFailure bumps the attempt counter and keeps the latest error.
func (s *Store) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return s.update(tx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    clip(cause.Error()),
	})
}

// DeadLetter copies row into outbox_dlq and parks it at parkAt attempts so
// Claim skips it from now on.
func (s *Store) DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, parkAt int) error {
	if tx == nil {
		return ErrTxRequired
	}
	msg := clip(cause.Error())
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert dead letter %s: %w", row.ID, err)
	}
	return s.update(tx, row.ID, map[string]any{
		"attempt_count": parkAt,
		"last_error":    msg,
	})
}

// DeadLetters lists the most recent dead letters.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDLQ
	err := s.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue returns a dead-lettered event to the relay with a fresh attempt
// budget and removes its dead letter entries.
func (s *Store) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotDeadLettered
		}
		return tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil}).Error
	})
}

// DeletePublishedBefore removes up to limit rows published before cutoff.
func (s *Store) DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	db := s.db.WithContext(ctx)
	batch := db.Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Order("published_at").
		Limit(limit)
	res := db.Where("id IN (?)", batch).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (s *Store) update(tx *gorm.DB, id uuid.UUID, values map[string]any) error {
	if tx == nil {
		return ErrTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(values).Error
}

func clip(msg string) string {
	if len(msg) <= maxErrorText {
		return msg
	}
	cut := msg[:maxErrorText]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
