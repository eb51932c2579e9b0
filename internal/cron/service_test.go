package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, store *memoryLeases, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	locker, err := NewLeaseLocker(store, time.Minute)
	if err != nil {
		t.Fatalf("locker: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:  logger.Nop(),
		Jobs:    jobs,
		Locker:  locker,
		Metrics: metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return svc
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	store := newMemoryLeases()
	reg := prometheus.NewRegistry()
	svc := newTestService(t, store, reg, failure, success)

	err := svc.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected the failing job in the pass error, got %v", err)
	}
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected 1 job error, got %d", got)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got success=%d fail=%d", success.runs, failure.runs)
	}
	if len(store.owners) != 0 {
		t.Fatalf("expected every lease released, still held: %v", store.owners)
	}
	if got := counterValue(t, reg, "storefront_cron_job_success_total", "success"); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := counterValue(t, reg, "storefront_cron_job_failure_total", "fail"); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestRunOnceSkipsOnlyTheLeasedJob(t *testing.T) {
	busy := &testJob{name: "cart_expiry"}
	free := &testJob{name: "outbox_retention"}
	store := newMemoryLeases()
	store.owners["cart_expiry"] = "other-worker"
	reg := prometheus.NewRegistry()
	svc := newTestService(t, store, reg, busy, free)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if busy.runs != 0 {
		t.Fatal("expected job skipped while another worker holds its lease")
	}
	if free.runs != 1 {
		t.Fatal("expected unrelated job to run")
	}
	if got := counterValue(t, reg, "storefront_cron_job_skipped_total", "cart_expiry"); got != 1 {
		t.Fatalf("expected 1 skip recorded, got %v", got)
	}
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	job := &testJob{name: "never"}
	svc := newTestService(t, newMemoryLeases(), nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatal("expected no job to start after cancellation")
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without locker")
	}
	locker, _ := NewLeaseLocker(newMemoryLeases(), time.Minute)
	_, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Locker: locker,
		Jobs:   []Job{&testJob{name: "a"}, nil, &testJob{name: "a"}},
	})
	if err == nil {
		t.Fatal("expected duplicate job names rejected")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{job=%q} not found", name, job)
	return 0
}
