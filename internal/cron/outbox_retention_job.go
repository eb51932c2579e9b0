package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const (
	outboxRetentionJobName = "outbox-retention"
	outboxRetentionWindow  = 30 * 24 * time.Hour
	outboxRetentionBatch   = 1000
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedEventPurger
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
	BatchSize  int
	MaxRounds  int
}

type publishedEventPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob builds the job that drops published outbox rows
// older than the retention window. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	var del deleteBatch
	if params.Repository != nil {
		del = params.Repository.DeletePublishedBefore
	}
	job, err := newSweepJob(outboxRetentionJobName, "outbox retention cleanup complete", params.Logger, del,
		params.Metrics, positiveOr(params.BatchSize, outboxRetentionBatch), params.MaxRounds)
	if err != nil {
		return nil, err
	}
	job.age = outboxRetentionWindow
	if params.Retention > 0 {
		job.age = params.Retention
	}
	return job, nil
}
