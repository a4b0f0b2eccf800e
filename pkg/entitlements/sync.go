package entitlements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
)

// SyncEngine pulls authoritative subscription state from the billing provider,
// normalizes it into a SubscriptionRecord, and writes it to the cache. It is
// the single writer of subscription truth; everything else only reads.
//
// Two concurrent syncs for the same customer are idempotent with respect to
// the provider - both derive from the same upstream truth and the last cache
// write wins. Within one process the singleflight group still collapses them
// to spare the provider a redundant call.
type SyncEngine struct {
	client  billing.Client
	cache   Cache
	catalog PlanCatalog
	logger  Logger
	metrics Metrics
	group   singleflight.Group
}

// SyncConfig holds SyncEngine dependencies.
type SyncConfig struct {
	// Client issues authenticated calls to the billing provider (required).
	Client billing.Client

	// Cache is the fast-path store for canonical records (required).
	Cache Cache

	// Catalog maps provider price IDs to plan tiers.
	Catalog PlanCatalog

	// Logger defaults to NoopLogger.
	Logger Logger

	// Metrics defaults to NoopMetrics.
	Metrics Metrics
}

// NewSyncEngine creates a sync engine from explicit dependencies.
func NewSyncEngine(cfg SyncConfig) (*SyncEngine, error) {
	if cfg.Client == nil {
		return nil, billing.ErrProviderNotConfigured
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &SyncEngine{
		client:  cfg.Client,
		cache:   cfg.Cache,
		catalog: cfg.Catalog,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Sync fetches the customer's most recent subscription, writes the canonical
// record to the cache keyed by customer ID, and returns it.
//
// When the provider call fails, a "none" record is written first so a slow or
// unreachable provider never leaves stale "active" data visible, and the
// original error is returned wrapped in ErrUpstreamBilling. A cache write
// failure after a successful fetch is fatal (ErrCacheWrite); a successful
// sync is never silently dropped.
func (e *SyncEngine) Sync(ctx context.Context, customerID string) (*SubscriptionRecord, error) {
	result, err, _ := e.group.Do(customerID, func() (interface{}, error) {
		return e.syncCustomer(ctx, customerID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SubscriptionRecord), nil
}

func (e *SyncEngine) syncCustomer(ctx context.Context, customerID string) (*SubscriptionRecord, error) {
	startTime := time.Now()
	previous := e.cachedTier(ctx, customerID)

	sub, err := e.client.LatestSubscription(ctx, customerID)
	if errors.Is(err, billing.ErrCustomerNotFound) {
		// A customer the provider no longer knows has no subscription; that
		// is an answer, not an outage.
		sub, err = nil, nil
	}
	if err != nil {
		// Overwrite whatever the cache held so readers degrade to the lowest
		// tier instead of trusting stale state.
		if writeErr := e.writeRecord(ctx, customerID, NoneRecord()); writeErr != nil {
			e.logger.Error("failed to write fallback record after provider error",
				Field{Key: "customer_id", Value: customerID},
				Field{Key: "error", Value: writeErr.Error()})
		} else {
			e.noteTierChange(previous, NoneRecord())
		}
		e.metrics.RecordSync("error")
		e.metrics.RecordSyncDuration(time.Since(startTime))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamBilling, err)
	}

	if sub == nil {
		rec := NoneRecord()
		if err := e.writeRecord(ctx, customerID, rec); err != nil {
			e.metrics.RecordSync("error")
			e.metrics.RecordSyncDuration(time.Since(startTime))
			return nil, err
		}
		e.noteTierChange(previous, rec)
		e.metrics.RecordSync("none")
		e.metrics.RecordSyncDuration(time.Since(startTime))
		return rec, nil
	}

	rec := e.normalize(customerID, sub)
	if err := e.writeRecord(ctx, customerID, rec); err != nil {
		e.metrics.RecordSync("error")
		e.metrics.RecordSyncDuration(time.Since(startTime))
		return nil, err
	}

	e.noteTierChange(previous, rec)
	e.metrics.RecordSync("success")
	e.metrics.RecordSyncDuration(time.Since(startTime))
	return rec, nil
}

// cachedTier derives the effective tier from the record the cache held before
// this sync, so transitions can be reported. Any read problem counts as
// starter, the same default readers would have seen.
func (e *SyncEngine) cachedTier(ctx context.Context, customerID string) Tier {
	data, err := e.cache.Get(ctx, CustomerDataKey(customerID))
	if err != nil {
		return TierStarter
	}
	var rec SubscriptionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TierStarter
	}
	return TierFor(&rec)
}

func (e *SyncEngine) noteTierChange(previous Tier, rec *SubscriptionRecord) {
	next := TierFor(rec)
	if next != previous {
		e.metrics.RecordTierChange(string(previous), string(next))
	}
}

// normalize assembles the canonical record from a provider subscription.
// An unrecognized price is a data-quality warning, not an error: the record
// is still written, with PlanID left empty.
func (e *SyncEngine) normalize(customerID string, sub *billing.Subscription) *SubscriptionRecord {
	planID := ""
	if tier, ok := e.catalog.TierForPrice(sub.PriceID); ok {
		planID = string(tier)
	} else {
		e.logger.Warn("price not in plan catalog",
			Field{Key: "customer_id", Value: customerID},
			Field{Key: "price_id", Value: sub.PriceID})
	}

	var pm *PaymentMethod
	if sub.PaymentMethod != nil {
		pm = &PaymentMethod{Brand: sub.PaymentMethod.Brand, Last4: sub.PaymentMethod.Last4}
	}

	cid := customerID
	periodStart := sub.CurrentPeriodStart
	periodEnd := sub.CurrentPeriodEnd
	cancel := sub.CancelAtPeriodEnd

	return &SubscriptionRecord{
		Status:             Status(sub.Status),
		SubscriptionID:     sub.ID,
		CustomerID:         &cid,
		PriceID:            sub.PriceID,
		PlanID:             planID,
		CurrentPeriodStart: &periodStart,
		CurrentPeriodEnd:   &periodEnd,
		CancelAtPeriodEnd:  &cancel,
		PaymentMethod:      pm,
	}
}

func (e *SyncEngine) writeRecord(ctx context.Context, customerID string, rec *SubscriptionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", ErrCacheWrite, err)
	}
	if err := e.cache.Set(ctx, CustomerDataKey(customerID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	return nil
}
