package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// LookupService answers "what subscription does this user have" for the rest
// of the application. It degrades instead of failing: if no customer can be
// found anywhere, or a fallback sync throws, callers get the "none" record
// and proceed at the lowest tier.
type LookupService struct {
	cache    Cache
	profiles ProfileStore
	engine   *SyncEngine
	logger   Logger
	metrics  Metrics

	// steps run in order; the first one that answers wins.
	steps []resolverStep
}

// resolverStep attempts to produce a record for a user. ok is false when the
// step cannot answer and the chain should continue.
type resolverStep func(ctx context.Context, userID string) (rec *SubscriptionRecord, ok bool)

// LookupConfig holds LookupService dependencies.
type LookupConfig struct {
	// Cache is the fast-path store (required).
	Cache Cache

	// Profiles is the durable profile store consulted when the cache has no
	// user→customer mapping (required).
	Profiles ProfileStore

	// Engine performs the synchronous fallback sync (required).
	Engine *SyncEngine

	// Logger defaults to NoopLogger.
	Logger Logger

	// Metrics defaults to NoopMetrics.
	Metrics Metrics
}

// NewLookupService creates a lookup service from explicit dependencies.
func NewLookupService(cfg LookupConfig) (*LookupService, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	s := &LookupService{
		cache:    cfg.Cache,
		profiles: cfg.Profiles,
		engine:   cfg.Engine,
		logger:   logger,
		metrics:  metrics,
	}
	s.steps = []resolverStep{
		s.fromCache,
		s.fromCachedMapping,
		s.fromProfile,
	}
	return s, nil
}

// GetSubscription resolves the canonical record for a user. It never fails
// for "not found": the chain short-circuits on the first step that answers,
// and the final fallback is the "none" record.
func (s *LookupService) GetSubscription(ctx context.Context, userID string) *SubscriptionRecord {
	for _, step := range s.steps {
		if rec, ok := step(ctx, userID); ok {
			return rec
		}
	}
	s.metrics.RecordLookup("default")
	return NoneRecord()
}

// GetTier resolves the effective plan tier for a user.
func (s *LookupService) GetTier(ctx context.Context, userID string) Tier {
	return TierFor(s.GetSubscription(ctx, userID))
}

// fromCache is the fast path: mapping and record both present in cache, no
// network call to the billing provider.
func (s *LookupService) fromCache(ctx context.Context, userID string) (*SubscriptionRecord, bool) {
	customerID, ok := s.cachedCustomerID(ctx, userID)
	if !ok {
		return nil, false
	}

	data, err := s.cache.Get(ctx, CustomerDataKey(customerID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed for subscription record",
				Field{Key: "customer_id", Value: customerID},
				Field{Key: "error", Value: err.Error()})
		}
		s.metrics.RecordCacheMiss("record")
		return nil, false
	}
	s.metrics.RecordCacheHit("record")

	var rec SubscriptionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Error("corrupt subscription record in cache",
			Field{Key: "customer_id", Value: customerID},
			Field{Key: "error", Value: err.Error()})
		return nil, false
	}

	s.metrics.RecordLookup("cache")
	return &rec, true
}

// fromCachedMapping covers a partially populated cache: the mapping survived
// but the record was evicted. The engine refills it synchronously. Once a
// customer ID is known the chain ends here - a failed sync degrades to the
// "none" record rather than re-syncing the same customer via the profile
// store.
func (s *LookupService) fromCachedMapping(ctx context.Context, userID string) (*SubscriptionRecord, bool) {
	customerID, ok := s.cachedCustomerID(ctx, userID)
	if !ok {
		return nil, false
	}
	rec, ok := s.syncAndReturn(ctx, customerID)
	if !ok {
		s.metrics.RecordLookup("default")
		return NoneRecord(), true
	}
	s.metrics.RecordLookup("sync")
	return rec, true
}

// fromProfile consults the durable profile store for a previously persisted
// customer ID, backfills the cache mapping, and syncs. The backfill is an
// optimization only; its failure is logged and ignored.
func (s *LookupService) fromProfile(ctx context.Context, userID string) (*SubscriptionRecord, bool) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			s.logger.Warn("profile lookup failed",
				Field{Key: "user_id", Value: userID},
				Field{Key: "error", Value: err.Error()})
		}
		return nil, false
	}
	if profile.StripeCustomerID == "" {
		return nil, false
	}

	if err := s.cache.Set(ctx, UserToCustomerKey(userID), []byte(profile.StripeCustomerID)); err != nil {
		s.logger.Warn("failed to backfill user mapping",
			Field{Key: "user_id", Value: userID},
			Field{Key: "error", Value: err.Error()})
	}

	rec, ok := s.syncAndReturn(ctx, profile.StripeCustomerID)
	if ok {
		s.metrics.RecordLookup("profile")
	}
	return rec, ok
}

func (s *LookupService) syncAndReturn(ctx context.Context, customerID string) (*SubscriptionRecord, bool) {
	rec, err := s.engine.Sync(ctx, customerID)
	if err != nil {
		// The sync engine reflects truth and re-raises; this service can
		// safely degrade, so the error stops here.
		s.logger.Error("fallback sync failed",
			Field{Key: "customer_id", Value: customerID},
			Field{Key: "error", Value: err.Error()})
		return nil, false
	}
	return rec, true
}

func (s *LookupService) cachedCustomerID(ctx context.Context, userID string) (string, bool) {
	data, err := s.cache.Get(ctx, UserToCustomerKey(userID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cache read failed for user mapping",
				Field{Key: "user_id", Value: userID},
				Field{Key: "error", Value: err.Error()})
		}
		s.metrics.RecordCacheMiss("mapping")
		return "", false
	}
	if len(data) == 0 {
		s.metrics.RecordCacheMiss("mapping")
		return "", false
	}
	s.metrics.RecordCacheHit("mapping")
	return string(data), true
}
