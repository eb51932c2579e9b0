package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	backoffJitter      = 250 * time.Millisecond
	readinessRetries   = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type relayStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, parkAt int) error
}

type decoder interface {
	Decode(models.OutboxEvent) (*registry.Message, error)
}

// sink delivers one message and waits for the broker's ack.
type sink interface {
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type RelayParams struct {
	Config  config.OutboxConfig
	Logger  *logger.Logger
	Tx      txRunner
	Store   relayStore
	Catalog decoder
	Sink    sink
	Metrics *metrics.OutboxMetrics
	// Checks are pinged, with retries, before the first batch.
	Checks map[string]func(context.Context) error
}

// Relay drains the transactional outbox into Pub/Sub. Rows of one checkout
// group go out in insertion order: after a failure the rest of that group
// waits for a later batch.
type Relay struct {
	logg        *logger.Logger
	tx          txRunner
	store       relayStore
	catalog     decoder
	sink        sink
	metrics     *metrics.OutboxMetrics
	checks      map[string]func(context.Context) error
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.Tx == nil:
		return nil, errors.New("transaction runner is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Catalog == nil:
		return nil, errors.New("event catalog is required")
	case p.Sink == nil:
		return nil, errors.New("publish sink is required")
	}
	poll := time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Relay{
		logg:        p.Logger,
		tx:          p.Tx,
		store:       p.Store,
		catalog:     p.Catalog,
		sink:        p.Sink,
		metrics:     p.Metrics,
		checks:      p.Checks,
		batchSize:   orDefault(p.Config.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(p.Config.MaxAttempts, defaultMaxAttempts),
		poll:        poll,
	}, nil
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run relays batches until ctx is canceled. A full batch is followed
// immediately by the next one; an empty batch waits one poll interval and a
// failed batch waits on an exponential backoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	backoff := r.failureBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.Drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case claimed > 0:
			backoff = r.failureBackoff()
			continue
		default:
			backoff = r.failureBackoff()
			wait = r.poll
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) failureBackoff() retry.Backoff {
	b := retry.NewExponential(r.poll)
	b = retry.WithCappedDuration(maxIdleBackoff, b)
	return retry.WithJitter(backoffJitter, b)
}

func (r *Relay) ready(ctx context.Context) error {
	for name, check := range r.checks {
		b := retry.WithMaxRetries(readinessRetries, retry.NewExponential(r.poll))
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			if err := check(ctx); err != nil {
				r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "dependency not ready")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	return nil
}

// Drain relays one batch inside a single transaction and reports how many
// rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(rows)

		held := map[uuid.UUID]struct{}{}
		for _, row := range rows {
			if _, ok := held[row.AggregateID]; ok {
				r.metrics.IncDeferred(string(row.EventType))
				continue
			}
			done, err := r.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			if !done {
				held[row.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	return claimed, err
}

// relay publishes row and records the outcome. done is false while the row
// is still pending a retry.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (done bool, err error) {
	rowCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	msg, err := r.catalog.Decode(row)
	if err == nil {
		err = r.publish(rowCtx, row, msg)
	}
	switch {
	case err == nil:
		if err := r.store.MarkPublished(tx, row.ID); err != nil {
			return false, fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Info(r.logg.WithField(rowCtx, "topic", msg.Topic), "outbox event published")
		return true, nil
	case registry.IsPermanent(err):
		return true, r.deadLetter(rowCtx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	case row.AttemptCount+1 >= r.maxAttempts:
		return true, r.deadLetter(rowCtx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err))
	}

	r.logg.Warn(r.logg.WithField(rowCtx, "error", err.Error()), "outbox publish failed, will retry")
	if err := r.store.RecordFailure(tx, row.ID, err); err != nil {
		return false, fmt.Errorf("record %s failure: %w", row.ID, err)
	}
	r.metrics.IncFailed(string(row.EventType))
	return false, nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, msg *registry.Message) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.sink.Publish(pubCtx, msg.Topic, &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       msg.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"schema_version": fmt.Sprint(msg.Envelope.SchemaVersion),
			"occurred_at":    msg.Envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	})
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")
	if err := r.store.DeadLetter(tx, row, reason, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(row.EventType))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
