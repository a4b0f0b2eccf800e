package entitlements

import (
	"context"
	"fmt"
	"time"
)

// rateLimitWindow is the sliding window every limiter uses. Tier limits are
// expressed as requests per minute, so the window is fixed.
const rateLimitWindow = time.Minute

// Limiter enforces a per-user, per-action sliding window sized by the tier's
// requests-per-minute ceiling.
type Limiter struct {
	store   RateLimitStore
	action  string
	limit   int
	logger  Logger
	metrics Metrics
}

// LimiterFactory builds limiters bound to a shared store. Actions are
// isolated by key: a burst against one feature must not exhaust a user's
// budget for an unrelated feature.
type LimiterFactory struct {
	store   RateLimitStore
	logger  Logger
	metrics Metrics
}

// NewLimiterFactory creates a factory over the given store.
func NewLimiterFactory(store RateLimitStore, logger Logger, metrics Metrics) (*LimiterFactory, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &LimiterFactory{store: store, logger: logger, metrics: metrics}, nil
}

// Limiter returns a limiter for one action, sized by the tier's
// requests-per-minute ceiling.
func (f *LimiterFactory) Limiter(tier Tier, action string) *Limiter {
	return &Limiter{
		store:   f.store,
		action:  action,
		limit:   LimitsFor(tier).RequestsPerMinute,
		logger:  f.logger,
		metrics: f.metrics,
	}
}

// RateLimitKey returns the store key isolating one user's window for one action.
func RateLimitKey(action, userID string) string {
	return "ratelimit:" + action + ":" + userID
}

// Check performs one sliding-window step for the user. The decision is a
// value, never an error: callers choose the user-facing message and compute
// the retry delay from ResetAt.
//
// If the backing store is unreachable the check fails closed: the returned
// decision denies the request, and the storage error is returned alongside it
// for the caller to log.
func (l *Limiter) Check(ctx context.Context, userID string) (RateLimitDecision, error) {
	startTime := time.Now()
	decision, err := l.store.Take(ctx, RateLimitKey(l.action, userID), l.limit, rateLimitWindow)
	l.metrics.RecordRateLimitDuration(l.action, time.Since(startTime))

	if err != nil {
		l.logger.Error("rate limit store unreachable, failing closed",
			Field{Key: "action", Value: l.action},
			Field{Key: "user_id", Value: userID},
			Field{Key: "error", Value: err.Error()})
		l.metrics.RecordRateLimitCheck(l.action, false)
		return RateLimitDecision{
			Allowed:   false,
			Limit:     l.limit,
			Remaining: 0,
			ResetAt:   time.Now().Add(rateLimitWindow),
		}, err
	}

	l.metrics.RecordRateLimitCheck(l.action, decision.Allowed)
	return decision, nil
}

// Limit returns the window size this limiter enforces.
func (l *Limiter) Limit() int {
	return l.limit
}
