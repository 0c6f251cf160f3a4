// Package cache is the distributed, out-of-process key/value store
// (component C2): review locks with create-if-absent TTL semantics, and
// best-effort counters. It owns no persistent state — everything here is
// ephemeral and advisory except the lock, which is the sole serialization
// point across concurrent Scheduler calls.
package cache

import "context"

// Cache is the contract the scheduler and ingester consume.
type Cache interface {
	// TryLock attempts to atomically claim key for ttl. Returns a token
	// identifying the lock holder, or "" if another caller already holds
	// it. Any cache error is surfaced to the caller, which must treat it
	// as "not acquired" (fail-closed, §4.2/§7) — TryLock never returns an
	// error for "already locked", only for genuine cache faults.
	TryLock(ctx context.Context, key string, ttl int64) (token string, err error)

	// IncrementPageCount adds one to the global page counter.
	IncrementPageCount(ctx context.Context) error

	// IncrementDomainPageCount adds one to a domain's page counter.
	IncrementDomainPageCount(ctx context.Context, domainURL string) error

	// IncrementNextJobsCount adds one to the next-jobs counter.
	IncrementNextJobsCount(ctx context.Context) error

	// GetPageCount reads a (possibly stale) page counter. domainURL empty
	// means the global counter.
	GetPageCount(ctx context.Context, domainURL string) (int64, error)
}
