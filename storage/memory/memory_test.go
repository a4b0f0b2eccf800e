package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

func TestCache_GetSet(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	_, err := cache.Get(ctx, "missing")
	if !errors.Is(err, entitlements.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}

	if err := cache.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("value = %q, want v", got)
	}
}

func TestCache_CopiesValues(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	value := []byte("original")
	if err := cache.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'X'

	got, _ := cache.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value mutated through caller's slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := cache.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestCache_Delete(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	_ = cache.Set(ctx, "k", []byte("v"))
	cache.Delete("k")

	if _, err := cache.Get(ctx, "k"); !errors.Is(err, entitlements.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestRateLimitStore_Take(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		decision, err := store.Take(ctx, "k", 3, time.Minute)
		if err != nil {
			t.Fatalf("Take %d failed: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied under the limit", i+1)
		}
		if decision.Remaining != 3-i-1 {
			t.Errorf("request %d: remaining = %d, want %d", i+1, decision.Remaining, 3-i-1)
		}
	}

	decision, err := store.Take(ctx, "k", 3, time.Minute)
	if err != nil {
		t.Fatalf("Take over limit failed: %v", err)
	}
	if decision.Allowed {
		t.Error("request over the limit must be denied")
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("reset at = %v, want %v", decision.ResetAt, now.Add(time.Minute))
	}

	// A denied request does not consume budget: advancing past the oldest
	// entry frees exactly the expired slots.
	now = now.Add(61 * time.Second)
	decision, _ = store.Take(ctx, "k", 3, time.Minute)
	if !decision.Allowed {
		t.Error("request after the window must be allowed")
	}
}

func TestRateLimitStore_KeysIsolated(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := store.Take(ctx, "a", 2, time.Minute); !d.Allowed {
			t.Fatalf("request %d on key a denied", i+1)
		}
	}
	if d, _ := store.Take(ctx, "a", 2, time.Minute); d.Allowed {
		t.Error("key a must be exhausted")
	}
	if d, _ := store.Take(ctx, "b", 2, time.Minute); !d.Allowed {
		t.Error("key b must have a fresh budget")
	}
}

func TestProfileStore(t *testing.T) {
	store := NewProfileStore()
	ctx := context.Background()

	_, err := store.GetByUserID(ctx, "user_1")
	if !errors.Is(err, entitlements.ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}

	store.Put(&entitlements.Profile{UserID: "user_1", Membership: "plus"})

	profile, err := store.GetByUserID(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if profile.Membership != "plus" {
		t.Errorf("membership = %q, want plus", profile.Membership)
	}

	if err := store.UpdateCustomerID(ctx, "user_1", "cus_123"); err != nil {
		t.Fatalf("UpdateCustomerID failed: %v", err)
	}
	profile, _ = store.GetByUserID(ctx, "user_1")
	if profile.StripeCustomerID != "cus_123" {
		t.Errorf("customer id = %q, want cus_123", profile.StripeCustomerID)
	}

	// Upsert semantics: updating an unknown user creates the profile.
	if err := store.UpdateCustomerID(ctx, "user_2", "cus_456"); err != nil {
		t.Fatalf("UpdateCustomerID upsert failed: %v", err)
	}
	profile, err = store.GetByUserID(ctx, "user_2")
	if err != nil {
		t.Fatalf("GetByUserID after upsert failed: %v", err)
	}
	if profile.StripeCustomerID != "cus_456" {
		t.Errorf("customer id = %q, want cus_456", profile.StripeCustomerID)
	}
}

func TestProfileStore_GetReturnsCopy(t *testing.T) {
	store := NewProfileStore()
	ctx := context.Background()

	store.Put(&entitlements.Profile{UserID: "user_1", Membership: "plus"})

	profile, _ := store.GetByUserID(ctx, "user_1")
	profile.Membership = "growth"

	again, _ := store.GetByUserID(ctx, "user_1")
	if again.Membership != "plus" {
		t.Errorf("stored profile mutated through returned copy: %q", again.Membership)
	}
}

func TestEventLedger(t *testing.T) {
	ledger := NewEventLedger()
	ctx := context.Background()

	processed, err := ledger.HasProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("HasProcessed failed: %v", err)
	}
	if processed {
		t.Error("fresh ledger must not report evt_1 as processed")
	}

	if err := ledger.MarkProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	processed, _ = ledger.HasProcessed(ctx, "evt_1")
	if !processed {
		t.Error("evt_1 must be processed after marking")
	}

	if err := ledger.MarkProcessed(ctx, "evt_1"); !errors.Is(err, billing.ErrDuplicateEvent) {
		t.Errorf("expected ErrDuplicateEvent on second mark, got %v", err)
	}
}

func TestEventLedger_ConcurrentMark(t *testing.T) {
	ledger := NewEventLedger()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := ledger.MarkProcessed(ctx, "evt_race"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("exactly one concurrent mark must win, got %d", winners)
	}
}
