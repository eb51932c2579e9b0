package cron

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

const cartExpiryJobName = "cart-expiry"

type CartExpiryJobParams struct {
	Logger     *logger.Logger
	Repository expiredCartRepo
	Metrics    *metrics.CronJobMetrics
	BatchSize  int
	MaxRounds  int
}

type expiredCartRepo interface {
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// NewCartExpiryJob builds the job that deletes carts past their expiry,
// lines included.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	var del deleteBatch
	if params.Repository != nil {
		del = params.Repository.DeleteExpired
	}
	job, err := newSweepJob(cartExpiryJobName, "expired carts removed", params.Logger, del,
		params.Metrics, params.BatchSize, params.MaxRounds)
	if err != nil {
		return nil, err
	}
	return job, nil
}
