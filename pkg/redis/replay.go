package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// pendingTTL bounds how long a reservation survives a crashed handler.
const pendingTTL = 2 * time.Minute

// ReplayRecord is a response stored against an idempotency key. A record
// with Status 0 is a reservation for a request still being handled.
type ReplayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Pending reports whether the original request has not finished yet.
func (r ReplayRecord) Pending() bool {
	return r.Status == 0
}

// LoadReplay returns the record for key, or nil when there is none.
func (c *Client) LoadReplay(ctx context.Context, scope, key string) (*ReplayRecord, error) {
	raw, err := c.Get(ctx, c.ReplayKey(scope, key))
	if errors.Is(err, ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record ReplayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode replay record: %w", err)
	}
	return &record, nil
}

// ReserveReplay claims key for a request with the given fingerprint. It
// returns false when another request already claimed or completed it.
func (c *Client) ReserveReplay(ctx context.Context, scope, key, fingerprint string) (bool, error) {
	payload, err := json.Marshal(ReplayRecord{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return c.SetNX(ctx, c.ReplayKey(scope, key), string(payload), pendingTTL)
}

// CompleteReplay replaces the reservation with the final response.
func (c *Client) CompleteReplay(ctx context.Context, scope, key string, record ReplayRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.Set(ctx, c.ReplayKey(scope, key), string(payload), ttl)
}

// AbandonReplay drops the reservation so the client may retry with the same
// key.
func (c *Client) AbandonReplay(ctx context.Context, scope, key string) error {
	return c.Del(ctx, c.ReplayKey(scope, key))
}
