package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/internal/bootstrap"
	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/cron"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

const service = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	rt, err := bootstrap.Start(context.Background(), service)
	if err != nil {
		bootstrap.Exit(service, err)
	}
	ctx, stop := rt.Context()

	err = run(ctx, rt, *once)
	stop()
	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Error(ctx, "cron worker failed", err)
		code = 1
	}
	rt.Close()
	os.Exit(code)
}

func run(ctx context.Context, rt *bootstrap.Runtime, once bool) error {
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	cfg := rt.Config.Cron
	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	locker, err := cron.NewLeaseLocker(redisClient, cfg.LockTTL)
	if err != nil {
		return err
	}
	cartExpiry, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{
		Logger:     rt.Logger,
		Repository: cart.NewRepository(rt.DB.DB()),
		Metrics:    jobMetrics,
		BatchSize:  cfg.CartSweepBatch,
		MaxRounds:  cfg.MaxSweepRounds,
	})
	if err != nil {
		return err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     rt.Logger,
		Repository: outbox.NewStore(rt.DB.DB()),
		Metrics:    jobMetrics,
		Retention:  cfg.OutboxRetention,
		BatchSize:  cfg.OutboxSweepBatch,
		MaxRounds:  cfg.MaxSweepRounds,
	})
	if err != nil {
		return err
	}

	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Jobs:     []cron.Job{cartExpiry, outboxRetention},
		Locker:   locker,
		Metrics:  jobMetrics,
		Interval: cfg.Interval,
	})
	if err != nil {
		return err
	}
	if once {
		return svc.RunOnce(ctx)
	}

	rt.Logger.Info(ctx, "starting cron worker")
	err = svc.Run(ctx)
	if errors.Is(err, context.Canceled) {
		rt.Logger.Info(ctx, "cron worker stopped")
	}
	return err
}
