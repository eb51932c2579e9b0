package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type sample struct {
	Note string `json:"note"`
}

func paidEvent(group uuid.UUID) Event {
	return Event{
		Type:        enums.EventOrderPaid,
		Aggregate:   enums.AggregateCheckoutGroup,
		AggregateID: group,
		Actor:       BuyerActor(uuid.New()),
		Data:        sample{Note: "paid"},
	}
}

func newWriter(t *testing.T) (*Writer, *Store, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	store := NewStore(conn)
	return NewWriter(store, logger.Nop()), store, conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	w, _, conn := newWriter(t)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("IST", 19800))
	id := uuid.New()
	w.now = func() time.Time { return fixed }
	w.newID = func() uuid.UUID { return id }

	group := uuid.New()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return w.Emit(context.Background(), tx, paidEvent(group))
	}))

	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", id).Error)
	assert.Equal(t, enums.EventOrderPaid, stored.EventType)
	assert.Equal(t, group, stored.AggregateID)
	assert.Nil(t, stored.PublishedAt)

	env, err := DecodeEnvelope(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, id.String(), env.EventID)
	assert.Equal(t, CurrentSchemaVersion, env.SchemaVersion)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, "buyer", env.Actor.Role)

	var data sample
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "paid", data.Note)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	w, _, conn := newWriter(t)
	boom := errors.New("state change failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := w.Emit(context.Background(), tx, paidEvent(uuid.New())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestEmitValidatesEvent(t *testing.T) {
	w, _, conn := newWriter(t)
	ctx := context.Background()

	assert.ErrorIs(t, w.Emit(ctx, nil, paidEvent(uuid.New())), ErrTxRequired)

	bad := paidEvent(uuid.New())
	bad.Type = "shipped"
	assert.ErrorIs(t, w.Emit(ctx, conn, bad), ErrUnknownType)

	bad = paidEvent(uuid.New())
	bad.Aggregate = "shop"
	assert.ErrorIs(t, w.Emit(ctx, conn, bad), ErrUnknownAggregate)

	bad = paidEvent(uuid.Nil)
	assert.ErrorIs(t, w.Emit(ctx, conn, bad), ErrMissingAggregate)

	bad = paidEvent(uuid.New())
	bad.Data = make(chan int)
	assert.Error(t, w.Emit(ctx, conn, bad))
}

func TestEmitOnceSkipsDuplicates(t *testing.T) {
	w, _, conn := newWriter(t)
	group := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.EmitOnce(context.Background(), conn, paidEvent(group)))
	}
	other := paidEvent(group)
	other.Type = enums.EventPaymentFailed
	require.NoError(t, w.EmitOnce(context.Background(), conn, other))

	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestClaimOrdersOldestFirstAndSkipsSpentRows(t *testing.T) {
	_, store, conn := newWriter(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := func(offset time.Duration, attempts int, published bool) models.OutboxEvent {
		r := models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateCheckoutGroup,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			CreatedAt:     base.Add(offset),
			AttemptCount:  attempts,
		}
		if published {
			at := base
			r.PublishedAt = &at
		}
		require.NoError(t, conn.Create(&r).Error)
		return r
	}
	second := seed(2*time.Minute, 0, false)
	first := seed(time.Minute, 2, false)
	seed(3*time.Minute, 5, false)
	seed(0, 0, true)

	rows, err := store.Claim(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	rows, err = store.Claim(conn, 1, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFailureDeadLetterAndRequeue(t *testing.T) {
	w, store, conn := newWriter(t)
	ctx := context.Background()
	require.NoError(t, w.Emit(ctx, conn, paidEvent(uuid.New())))

	var r models.OutboxEvent
	require.NoError(t, conn.First(&r).Error)

	require.NoError(t, store.RecordFailure(conn, r.ID, errors.New(strings.Repeat("x", 3000))))
	require.NoError(t, conn.First(&r, "id = ?", r.ID).Error)
	assert.Equal(t, 1, r.AttemptCount)
	require.NotNil(t, r.LastError)
	assert.Len(t, *r.LastError, maxErrorText)

	require.NoError(t, store.DeadLetter(conn, r, enums.OutboxDLQReasonMaxAttempts, errors.New("gave up"), 10))
	rows, err := store.Claim(conn, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	dead, err := store.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, r.ID, dead[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dead[0].ErrorReason)
	assert.Equal(t, "gave up", *dead[0].ErrorMessage)

	require.NoError(t, store.Requeue(ctx, r.ID))
	rows, err = store.Claim(conn, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].AttemptCount)
	assert.Nil(t, rows[0].LastError)

	assert.ErrorIs(t, store.Requeue(ctx, r.ID), ErrNotDeadLettered)
}

func TestMarkPublishedAndRetention(t *testing.T) {
	w, store, conn := newWriter(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.Emit(ctx, conn, paidEvent(uuid.New())))
	}
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at, id").Find(&rows).Error)

	store.now = func() time.Time { return now.Add(-48 * time.Hour) }
	require.NoError(t, store.MarkPublished(conn, rows[0].ID))
	require.NoError(t, store.MarkPublished(conn, rows[1].ID))
	store.now = func() time.Time { return now }
	require.NoError(t, store.MarkPublished(conn, rows[2].ID))

	deleted, err := store.DeletePublishedBefore(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = store.DeletePublishedBefore(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	assert.EqualValues(t, 2, left)
}
