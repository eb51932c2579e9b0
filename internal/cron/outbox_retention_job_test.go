package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

func TestOutboxRetentionKeepsPendingAndRecentRows(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 6, 30, 8, 0, 0, 0, time.UTC)
	ancient := now.AddDate(0, 0, -45)
	lastWeek := now.AddDate(0, 0, -7)

	insert := func(publishedAt *time.Time) uuid.UUID {
		row := models.OutboxEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateCheckoutGroup,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed outbox row: %v", err)
		}
		return row.ID
	}
	for i := 0; i < 3; i++ {
		insert(&ancient)
	}
	recent := insert(&lastWeek)
	pending := insert(nil)

	reg := prometheus.NewRegistry()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: outbox.NewStore(conn),
		Metrics:    metrics.NewCronJobMetrics(reg),
		BatchSize:  2,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*sweepJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ids []uuid.UUID
	if err := conn.Model(&models.OutboxEvent{}).Pluck("id", &ids).Error; err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected recent and pending rows to survive, got %d rows", len(ids))
	}
	for _, id := range ids {
		if id != recent && id != pending {
			t.Fatalf("row %s should have been purged", id)
		}
	}
	if got := counterValue(t, reg, "storefront_cron_rows_affected_total", outboxRetentionJobName); got != 3 {
		t.Fatalf("expected 3 purged rows recorded, got %v", got)
	}
}

type purgeCall struct {
	cutoff time.Time
	limit  int
}

type recordingPurger struct {
	calls []purgeCall
	err   error
}

func (p *recordingPurger) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.calls = append(p.calls, purgeCall{cutoff: cutoff, limit: limit})
	return 0, p.err
}

func TestOutboxRetentionWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		retention time.Duration
		want      time.Time
	}{
		{"default", 0, now.Add(-outboxRetentionWindow)},
		{"configured", 48 * time.Hour, now.Add(-48 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			purger := &recordingPurger{}
			jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
				Logger:     logger.Nop(),
				Repository: purger,
				Retention:  tc.retention,
			})
			if err != nil {
				t.Fatalf("NewOutboxRetentionJob: %v", err)
			}
			job := jobIface.(*sweepJob)
			job.now = func() time.Time { return now }

			if err := job.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(purger.calls) != 1 {
				t.Fatalf("expected a single round for an empty backlog, got %d", len(purger.calls))
			}
			call := purger.calls[0]
			if !call.cutoff.Equal(tc.want) || call.limit != outboxRetentionBatch {
				t.Fatalf("unexpected purge call %+v", call)
			}
		})
	}
}

func TestOutboxRetentionSurfacesStoreErrors(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: &recordingPurger{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSweepJobsRequireDependencies(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
	if _, err := NewCartExpiryJob(CartExpiryJobParams{}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
}
