// Package memory provides in-memory implementations of the cache, rate-limit
// store, profile store, and event ledger. Primarily intended for testing and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// Cache implements entitlements.Cache using a map.
type Cache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewCache creates an in-memory cache.
func NewCache() *Cache {
	return &Cache{data: make(map[string][]byte)}
}

// Get implements entitlements.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.data[key]
	if !ok {
		return nil, entitlements.ErrCacheMiss
	}

	// Return a copy to prevent external mutations
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set implements entitlements.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	c.data[key] = stored
	return nil
}

// Delete removes a key. Useful for simulating eviction in tests.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// RateLimitStore implements entitlements.RateLimitStore with per-key
// timestamp slices guarded by a mutex.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimitStore creates an in-memory sliding-window store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// SetNow overrides the time source. Test hook.
func (s *RateLimitStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Take implements entitlements.RateLimitStore: expire entries outside the
// window, count, and record the request if it fits.
func (s *RateLimitStore) Take(ctx context.Context, key string, limit int, window time.Duration) (entitlements.RateLimitDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	decision := entitlements.RateLimitDecision{Limit: limit}

	if len(kept) >= limit {
		decision.Allowed = false
		decision.Remaining = 0
		decision.ResetAt = kept[0].Add(window)
	} else {
		kept = append(kept, now)
		decision.Allowed = true
		decision.Remaining = limit - len(kept)
		decision.ResetAt = kept[0].Add(window)
	}

	s.windows[key] = kept
	return decision, nil
}

// ProfileStore implements entitlements.ProfileStore using a map.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*entitlements.Profile
}

// NewProfileStore creates an in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*entitlements.Profile)}
}

// GetByUserID implements entitlements.ProfileStore.
func (s *ProfileStore) GetByUserID(ctx context.Context, userID string) (*entitlements.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, entitlements.ErrProfileNotFound
	}

	out := *profile
	return &out, nil
}

// UpdateCustomerID implements entitlements.ProfileStore. A missing profile is
// created, matching upsert semantics of the durable store.
func (s *ProfileStore) UpdateCustomerID(ctx context.Context, userID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		profile = &entitlements.Profile{UserID: userID}
		s.profiles[userID] = profile
	}
	profile.StripeCustomerID = customerID
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// Put stores a complete profile. Test helper.
func (s *ProfileStore) Put(profile *entitlements.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *profile
	s.profiles[profile.UserID] = &out
}

// EventLedger implements billing.EventLedger using a map keyed by event ID.
type EventLedger struct {
	mu     sync.Mutex
	events map[string]time.Time
}

// NewEventLedger creates an in-memory processed-event ledger.
func NewEventLedger() *EventLedger {
	return &EventLedger{events: make(map[string]time.Time)}
}

// HasProcessed implements billing.EventLedger.
func (l *EventLedger) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.events[eventID]
	return ok, nil
}

// MarkProcessed implements billing.EventLedger. The map insert under the
// mutex plays the role of the primary-key constraint.
func (l *EventLedger) MarkProcessed(ctx context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.events[eventID]; ok {
		return billing.ErrDuplicateEvent
	}
	l.events[eventID] = time.Now().UTC()
	return nil
}
