package redis

import (
	"context"
	"time"
)

// releaseLeaseScript deletes the lease only while it still carries the
// caller's owner token, so an expired and re-acquired lease is never freed
// by its previous holder.
const releaseLeaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// AcquireLease takes the named job lease for ttl when nobody holds it.
func (c *Client) AcquireLease(ctx context.Context, job, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.LeaseKey(job), owner, ttl)
}

// ReleaseLease frees the lease if owner still holds it and reports whether
// it did.
func (c *Client) ReleaseLease(ctx context.Context, job, owner string) (bool, error) {
	store, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := store.Eval(ctx, releaseLeaseScript, []string{c.LeaseKey(job)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
