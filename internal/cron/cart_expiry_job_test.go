package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

func TestCartExpiryJobDeletesExpiredCartsWithLines(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	seed := func(expires *time.Time) models.Cart {
		c := models.Cart{OwnerID: uuid.New(), Version: 1, ExpiresAt: expires}
		if err := conn.Create(&c).Error; err != nil {
			t.Fatalf("seed cart: %v", err)
		}
		line := models.CartLine{
			CartID: c.ID, ProductID: uuid.New(), ShopID: uuid.New(), ShopName: "shop",
			ProductName: "mug", UnitPriceCents: 100, Quantity: 1, MaxQuantity: 5, IsAvailable: true,
		}
		if err := conn.Create(&line).Error; err != nil {
			t.Fatalf("seed line: %v", err)
		}
		return c
	}
	for i := 0; i < 5; i++ {
		seed(&past)
	}
	live := seed(&future)
	forever := seed(nil)

	reg := prometheus.NewRegistry()
	jobIface, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger:     logger.Nop(),
		Repository: cart.NewRepository(conn),
		Metrics:    metrics.NewCronJobMetrics(reg),
		BatchSize:  2,
	})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}
	job := jobIface.(*sweepJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var remaining []models.Cart
	if err := conn.Order("created_at").Find(&remaining).Error; err != nil {
		t.Fatalf("list carts: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 live carts, got %d", len(remaining))
	}
	for _, c := range remaining {
		if c.ID != live.ID && c.ID != forever.ID {
			t.Fatalf("unexpected surviving cart %s", c.ID)
		}
	}
	var lines int64
	if err := conn.Model(&models.CartLine{}).Count(&lines).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lines != 2 {
		t.Fatalf("expected lines of expired carts removed, %d left", lines)
	}
	if got := counterValue(t, reg, "storefront_cron_rows_affected_total", cartExpiryJobName); got != 5 {
		t.Fatalf("expected 5 affected rows recorded, got %v", got)
	}
}

type scriptedDeleter struct {
	results []int64
	err     error
	calls   int
}

func (s *scriptedDeleter) delete(_ context.Context, _ time.Time, _ int) (int64, error) {
	s.calls++
	if s.calls > len(s.results) {
		return 0, s.err
	}
	return s.results[s.calls-1], nil
}

func TestSweepStopsOnShortBatch(t *testing.T) {
	del := &scriptedDeleter{results: []int64{10, 10, 3, 10}}
	total, err := sweep(context.Background(), del.delete, time.Now(), 10, 20)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if total != 23 || del.calls != 3 {
		t.Fatalf("expected 23 rows in 3 calls, got %d in %d", total, del.calls)
	}
}

func TestSweepHonorsRoundCap(t *testing.T) {
	del := &scriptedDeleter{results: []int64{10, 10, 10, 10}}
	total, err := sweep(context.Background(), del.delete, time.Now(), 10, 2)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if total != 20 || del.calls != 2 {
		t.Fatalf("expected 20 rows in 2 calls, got %d in %d", total, del.calls)
	}
}

func TestSweepReportsPartialProgressOnError(t *testing.T) {
	del := &scriptedDeleter{results: []int64{10}, err: errors.New("db down")}
	total, err := sweep(context.Background(), del.delete, time.Now(), 10, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if total != 10 {
		t.Fatalf("expected 10 rows before failure, got %d", total)
	}
}
