package entitlements

import "time"

// Metrics defines the interface for tracking subscription sync, lookup, and
// rate-limit operations. All methods are optional - components should be
// constructed with NoopMetrics when metrics are not collected.
type Metrics interface {
	// RecordSync records a subscription sync attempt.
	// status: "success", "none", or "error"
	RecordSync(status string)

	// RecordSyncDuration records how long a sync took end to end.
	RecordSyncDuration(duration time.Duration)

	// RecordLookup records which resolver step answered a lookup.
	// source: "cache", "sync", "profile", or "default"
	RecordLookup(source string)

	// RecordCacheHit records a cache hit for a key class ("mapping" or "record").
	RecordCacheHit(keyClass string)

	// RecordCacheMiss records a cache miss for a key class.
	RecordCacheMiss(keyClass string)

	// RecordRateLimitCheck records a rate-limiter decision for an action.
	RecordRateLimitCheck(action string, allowed bool)

	// RecordRateLimitDuration records the latency of a rate-limiter check.
	RecordRateLimitDuration(action string, duration time.Duration)

	// RecordTierChange records a transition between plan tiers.
	RecordTierChange(fromTier, toTier string)

	// RecordWebhookEvent records a processed billing event.
	// outcome: "synced", "skipped", "ignored", or "error"
	RecordWebhookEvent(eventType, outcome string)

	// RecordWebhookDuration records end-to-end webhook processing latency.
	RecordWebhookDuration(duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordSync(status string)                                 {}
func (n *NoopMetrics) RecordSyncDuration(duration time.Duration)                {}
func (n *NoopMetrics) RecordLookup(source string)                               {}
func (n *NoopMetrics) RecordCacheHit(keyClass string)                           {}
func (n *NoopMetrics) RecordCacheMiss(keyClass string)                          {}
func (n *NoopMetrics) RecordRateLimitCheck(action string, allowed bool)         {}
func (n *NoopMetrics) RecordRateLimitDuration(action string, dur time.Duration) {}
func (n *NoopMetrics) RecordTierChange(fromTier, toTier string)                 {}
func (n *NoopMetrics) RecordWebhookEvent(eventType, outcome string)             {}
func (n *NoopMetrics) RecordWebhookDuration(duration time.Duration)             {}
