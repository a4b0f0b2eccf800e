package entitlements_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
	"github.com/moemoe9876/ingestio-sub002/storage/memory"
)

type lookupFixture struct {
	client   *fakeBillingClient
	cache    *memory.Cache
	profiles *memory.ProfileStore
	engine   *entitlements.SyncEngine
	lookup   *entitlements.LookupService
}

func newLookupFixture(t *testing.T) *lookupFixture {
	t.Helper()

	client := &fakeBillingClient{
		subs: map[string]*billing.Subscription{
			"cus_xyz789": {
				ID:      "sub_1",
				Status:  "active",
				PriceID: "price_test789",
			},
		},
	}
	cache := memory.NewCache()
	profiles := memory.NewProfileStore()
	engine := newTestEngine(t, client, cache)

	lookup, err := entitlements.NewLookupService(entitlements.LookupConfig{
		Cache:    cache,
		Profiles: profiles,
		Engine:   engine,
	})
	if err != nil {
		t.Fatalf("NewLookupService: %v", err)
	}

	return &lookupFixture{client: client, cache: cache, profiles: profiles, engine: engine, lookup: lookup}
}

func (f *lookupFixture) seedMapping(t *testing.T, userID, customerID string) {
	t.Helper()
	if err := f.cache.Set(context.Background(), entitlements.UserToCustomerKey(userID), []byte(customerID)); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}
}

func (f *lookupFixture) seedRecord(t *testing.T, customerID string, rec *entitlements.SubscriptionRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := f.cache.Set(context.Background(), entitlements.CustomerDataKey(customerID), data); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestGetSubscription_FastPath(t *testing.T) {
	f := newLookupFixture(t)
	cid := "cus_xyz789"
	f.seedMapping(t, "user_1", cid)
	f.seedRecord(t, cid, &entitlements.SubscriptionRecord{
		Status:     entitlements.StatusActive,
		PlanID:     "plus",
		CustomerID: &cid,
	})

	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusActive || rec.PlanID != "plus" {
		t.Errorf("record = %+v, want cached active/plus", rec)
	}
	if f.client.calls != 0 {
		t.Errorf("billing provider called %d times on the fast path, want 0", f.client.calls)
	}
}

func TestGetSubscription_EvictedRecordTriggersSync(t *testing.T) {
	f := newLookupFixture(t)
	f.seedMapping(t, "user_1", "cus_xyz789")
	// Record deliberately absent: mapping survived an eviction.

	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusActive {
		t.Errorf("status = %q, want active from fallback sync", rec.Status)
	}
	if rec.PlanID != "plus" {
		t.Errorf("plan = %q, want plus", rec.PlanID)
	}
	if f.client.calls != 1 {
		t.Errorf("billing provider called %d times, want 1", f.client.calls)
	}

	// The sync must have repopulated the cache.
	if _, err := f.cache.Get(context.Background(), entitlements.CustomerDataKey("cus_xyz789")); err != nil {
		t.Errorf("record not repopulated after fallback sync: %v", err)
	}
}

func TestGetSubscription_ProfileFallbackBackfillsMapping(t *testing.T) {
	f := newLookupFixture(t)
	f.profiles.Put(&entitlements.Profile{UserID: "user_1", StripeCustomerID: "cus_xyz789"})

	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusActive {
		t.Errorf("status = %q, want active via profile fallback", rec.Status)
	}

	// The user mapping must have been written back to the cache.
	data, err := f.cache.Get(context.Background(), entitlements.UserToCustomerKey("user_1"))
	if err != nil {
		t.Fatalf("mapping not backfilled: %v", err)
	}
	if string(data) != "cus_xyz789" {
		t.Errorf("backfilled mapping = %q, want cus_xyz789", data)
	}

	// Second lookup rides the cache.
	f.lookup.GetSubscription(context.Background(), "user_1")
	if f.client.calls != 1 {
		t.Errorf("billing provider called %d times across both lookups, want 1", f.client.calls)
	}
}

func TestGetSubscription_UnknownUserGetsNone(t *testing.T) {
	f := newLookupFixture(t)

	rec := f.lookup.GetSubscription(context.Background(), "user_nobody")
	if rec.Status != entitlements.StatusNone {
		t.Errorf("status = %q, want none for unknown user", rec.Status)
	}
	if f.client.calls != 0 {
		t.Errorf("billing provider called %d times for unknown user, want 0", f.client.calls)
	}
}

func TestGetSubscription_ProfileWithoutCustomerGetsNone(t *testing.T) {
	f := newLookupFixture(t)
	f.profiles.Put(&entitlements.Profile{UserID: "user_1"})

	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusNone {
		t.Errorf("status = %q, want none when profile has no customer", rec.Status)
	}
}

func TestGetSubscription_SyncFailureDegradesToNone(t *testing.T) {
	f := newLookupFixture(t)
	f.client.err = errors.New("stripe is down")
	f.seedMapping(t, "user_1", "cus_xyz789")
	// The profile carries the same customer; a failed sync must not trigger a
	// second attempt through it.
	f.profiles.Put(&entitlements.Profile{UserID: "user_1", StripeCustomerID: "cus_xyz789"})

	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusNone {
		t.Errorf("status = %q, want none when fallback sync fails", rec.Status)
	}
	if f.client.calls != 1 {
		t.Errorf("billing provider called %d times, want 1", f.client.calls)
	}
}

func TestGetSubscription_CorruptRecordFallsThrough(t *testing.T) {
	f := newLookupFixture(t)
	f.seedMapping(t, "user_1", "cus_xyz789")
	if err := f.cache.Set(context.Background(), entitlements.CustomerDataKey("cus_xyz789"), []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	// Corrupt cache data must not surface to the caller; the chain resyncs.
	rec := f.lookup.GetSubscription(context.Background(), "user_1")
	if rec.Status != entitlements.StatusActive {
		t.Errorf("status = %q, want active after resync past corrupt record", rec.Status)
	}
	if f.client.calls != 1 {
		t.Errorf("billing provider called %d times, want 1", f.client.calls)
	}
}

func TestGetTier(t *testing.T) {
	f := newLookupFixture(t)
	cid := "cus_xyz789"

	if got := f.lookup.GetTier(context.Background(), "user_nobody"); got != entitlements.TierStarter {
		t.Errorf("tier for unknown user = %q, want starter", got)
	}

	f.seedMapping(t, "user_1", cid)
	f.seedRecord(t, cid, &entitlements.SubscriptionRecord{
		Status:     entitlements.StatusActive,
		PlanID:     "growth",
		CustomerID: &cid,
	})
	if got := f.lookup.GetTier(context.Background(), "user_1"); got != entitlements.TierGrowth {
		t.Errorf("tier = %q, want growth", got)
	}

	f.seedRecord(t, cid, &entitlements.SubscriptionRecord{
		Status:     entitlements.StatusPastDue,
		PlanID:     "growth",
		CustomerID: &cid,
	})
	if got := f.lookup.GetTier(context.Background(), "user_1"); got != entitlements.TierStarter {
		t.Errorf("tier for past_due = %q, want starter", got)
	}
}
