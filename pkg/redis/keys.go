package redis

import "strings"

// Keyspace prefixes every key the storefront writes so several environments
// can share one Redis.
type Keyspace string

// DefaultKeyspace is "sf".
const DefaultKeyspace Keyspace = "sf"

// GuestCartKey holds one guest session's cart document.
func (k Keyspace) GuestCartKey(session string) string {
	return k.join("guest_cart", session)
}

// ReplayKey holds the stored response for one idempotency key within a scope.
func (k Keyspace) ReplayKey(scope, key string) string {
	return k.join("idempotency", scope, key)
}

// LeaseKey is the cron lease for one job.
func (k Keyspace) LeaseKey(job string) string {
	return k.join("lease", job)
}

func (k Keyspace) join(parts ...string) string {
	ns := string(k)
	if ns == "" {
		ns = string(DefaultKeyspace)
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
