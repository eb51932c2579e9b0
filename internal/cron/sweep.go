package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const (
	defaultSweepBatch  = 500
	defaultSweepRounds = 20
)

// deleteBatch removes at most limit rows matching cutoff and reports how
// many went.
type deleteBatch func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

// sweep runs del in batches until a short batch signals the backlog is gone
// or rounds is exhausted. Rows deleted before a failure are still reported.
func sweep(ctx context.Context, del deleteBatch, cutoff time.Time, batch, rounds int) (int64, error) {
	var total int64
	for round := 0; round < rounds; round++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := del(ctx, cutoff, batch)
		total += rows
		if err != nil {
			return total, err
		}
		if rows < int64(batch) {
			break
		}
	}
	return total, nil
}

// sweepJob is a Job that deletes rows older than a cutoff derived from the
// current time.
type sweepJob struct {
	name    string
	what    string
	logg    *logger.Logger
	del     deleteBatch
	age     time.Duration
	metrics *metrics.CronJobMetrics
	batch   int
	rounds  int
	now     func() time.Time
}

func newSweepJob(name, what string, logg *logger.Logger, del deleteBatch, m *metrics.CronJobMetrics, batch, rounds int) (*sweepJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if del == nil {
		return nil, fmt.Errorf("%s: repository required", name)
	}
	return &sweepJob{
		name:    name,
		what:    what,
		logg:    logg,
		del:     del,
		metrics: m,
		batch:   positiveOr(batch, defaultSweepBatch),
		rounds:  positiveOr(rounds, defaultSweepRounds),
		now:     time.Now,
	}, nil
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) cutoff() time.Time {
	return j.now().UTC().Add(-j.age)
}

func (j *sweepJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	deleted, err := sweep(ctx, j.del, cutoff, j.batch, j.rounds)
	j.metrics.AddAffected(j.name, deleted)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	fields := map[string]any{"cutoff": cutoff, "batch_size": j.batch, "rows_deleted": deleted}
	if j.age > 0 {
		fields["retention"] = j.age.String()
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), j.what)
	return nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
