package entitlements

import (
	"context"
	"time"
)

// Cache is the low-latency key-value store used as the fast path for
// subscription state and mapping lookups. Get returns ErrCacheMiss when the
// key is absent. A Set replaces the value atomically; readers observe either
// the previous or the new value, never a partial write.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ProfileStore is the durable per-user record store. It is the source of
// truth for the user→customer mapping when the cache is cold.
type ProfileStore interface {
	// GetByUserID returns the profile for a user, or ErrProfileNotFound.
	GetByUserID(ctx context.Context, userID string) (*Profile, error)

	// UpdateCustomerID persists the billing customer ID on a user's profile.
	UpdateCustomerID(ctx context.Context, userID, customerID string) error
}

// RateLimitStore performs one atomic sliding-window step: expire entries
// outside the window, count, and record the request if it fits.
type RateLimitStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
