package driven

import (
	"context"
	"time"
)

// DistributedLock serializes per-document operations across instances.
// Two concurrent advances of the same document's state machine must not
// double-spend storage or double-emit ledger transactions.
type DistributedLock interface {
	// Acquire attempts to acquire a named lock with the given TTL.
	// Returns true if the lock was successfully acquired, false if
	// already held by another holder. The lock auto-expires after TTL
	// (implementation dependent).
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release releases a named lock. Best-effort; TTL implementations
	// auto-expire anyway. Safe to call when the lock is not held.
	Release(ctx context.Context, name string) error

	// Extend extends the TTL of a currently held lock. Returns an error
	// if the lock is not held by this instance.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
