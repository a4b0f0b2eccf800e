// Package prommetrics provides a Prometheus implementation of the
// entitlements.Metrics interface.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements entitlements.Metrics using Prometheus.
type Metrics struct {
	syncTotal              *prometheus.CounterVec
	syncDuration           prometheus.Histogram
	lookupTotal            *prometheus.CounterVec
	cacheHitsTotal         *prometheus.CounterVec
	cacheMissesTotal       *prometheus.CounterVec
	rateLimitChecksTotal   *prometheus.CounterVec
	rateLimitCheckDuration *prometheus.HistogramVec
	tierChangesTotal       *prometheus.CounterVec
	webhookEventsTotal     *prometheus.CounterVec
	webhookDuration        prometheus.Histogram
}

// NewMetrics creates a new Prometheus metrics implementation registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		syncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_sync_total",
			Help:      "Total number of subscription sync attempts.",
		}, []string{"status"}),

		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscription_sync_duration_seconds",
			Help:      "Latency of subscription syncs.",
			Buckets:   prometheus.DefBuckets,
		}),

		lookupTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_lookup_total",
			Help:      "Total number of subscription lookups by resolver source.",
		}, []string{"source"}),

		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"type"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"type"}),

		rateLimitChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_checks_total",
			Help:      "Total number of rate limit checks.",
		}, []string{"action", "allowed"}),

		rateLimitCheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_check_duration_seconds",
			Help:      "Latency of rate limit checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		tierChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Total number of plan tier transitions.",
		}, []string{"from", "to"}),

		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of billing webhook events by outcome.",
		}, []string{"type", "outcome"}),

		webhookDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_duration_seconds",
			Help:      "End-to-end latency of webhook event processing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// DefaultMetrics creates metrics registered on the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordSync(status string) {
	m.syncTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordLookup(source string) {
	m.lookupTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordCacheHit(keyClass string) {
	m.cacheHitsTotal.WithLabelValues(keyClass).Inc()
}

func (m *Metrics) RecordCacheMiss(keyClass string) {
	m.cacheMissesTotal.WithLabelValues(keyClass).Inc()
}

func (m *Metrics) RecordRateLimitCheck(action string, allowed bool) {
	m.rateLimitChecksTotal.WithLabelValues(action, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordRateLimitDuration(action string, duration time.Duration) {
	m.rateLimitCheckDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) RecordTierChange(fromTier, toTier string) {
	m.tierChangesTotal.WithLabelValues(fromTier, toTier).Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordWebhookDuration(duration time.Duration) {
	m.webhookDuration.Observe(duration.Seconds())
}
