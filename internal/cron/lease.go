package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/instance"
)

const defaultLeaseTTL = 10 * time.Minute

// LeaseStore is the slice of the redis client the scheduler needs.
type LeaseStore interface {
	AcquireLease(ctx context.Context, job, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, job, owner string) (bool, error)
}

// Locker hands out per-job leases so two workers never sweep the same table
// at once while unrelated jobs still run in parallel.
type Locker interface {
	// Lease returns a release func when the job lease was taken, or nil
	// when another worker holds it.
	Lease(ctx context.Context, job string) (func(context.Context) error, error)
}

type leaseLocker struct {
	store LeaseStore
	ttl   time.Duration
	owner func() string
}

// NewLeaseLocker builds a Locker on top of redis job leases. The ttl bounds
// how long a crashed worker can block a job.
func NewLeaseLocker(store LeaseStore, ttl time.Duration) (Locker, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &leaseLocker{
		store: store,
		ttl:   ttl,
		owner: func() string { return instance.ID() + "/" + uuid.NewString() },
	}, nil
}

func (l *leaseLocker) Lease(ctx context.Context, job string) (func(context.Context) error, error) {
	owner := l.owner()
	ok, err := l.store.AcquireLease(ctx, job, owner, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lease: %w", job, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		if _, err := l.store.ReleaseLease(ctx, job, owner); err != nil {
			return fmt.Errorf("release %s lease: %w", job, err)
		}
		return nil
	}, nil
}
