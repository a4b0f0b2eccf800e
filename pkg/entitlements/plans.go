package entitlements

// Tier identifies a subscription plan. The set is closed: every quota and
// rate decision derives from LimitsFor, which is exhaustive over these values.
type Tier string

const (
	TierStarter Tier = "starter"
	TierPlus    Tier = "plus"
	TierGrowth  Tier = "growth"
)

// TierLimits are the usage ceilings attached to a tier.
type TierLimits struct {
	PagesPerMonth     int
	MaxBatchSize      int
	RequestsPerMinute int
}

// LimitsFor returns the limits table entry for a tier. Unknown tiers get the
// starter limits so an unrecognized value can never unlock higher ceilings.
func LimitsFor(tier Tier) TierLimits {
	switch tier {
	case TierStarter:
		return TierLimits{PagesPerMonth: 250, MaxBatchSize: 1, RequestsPerMinute: 10}
	case TierPlus:
		return TierLimits{PagesPerMonth: 2500, MaxBatchSize: 25, RequestsPerMinute: 30}
	case TierGrowth:
		return TierLimits{PagesPerMonth: 10000, MaxBatchSize: 100, RequestsPerMinute: 60}
	default:
		return TierLimits{PagesPerMonth: 250, MaxBatchSize: 1, RequestsPerMinute: 10}
	}
}

// ValidTier reports whether tier is one of the known plan identifiers.
func ValidTier(tier Tier) bool {
	switch tier {
	case TierStarter, TierPlus, TierGrowth:
		return true
	}
	return false
}

// PlanCatalog maps billing-provider price IDs to tiers. It is static
// configuration supplied at construction time; the SyncEngine consults it to
// resolve PlanID and silently tolerates unknown prices.
type PlanCatalog map[string]Tier

// TierForPrice resolves a price ID to a tier. The second return value is
// false when the price is not in the catalog.
func (c PlanCatalog) TierForPrice(priceID string) (Tier, bool) {
	tier, ok := c[priceID]
	return tier, ok
}

// TierFor derives the effective tier from a canonical record. Only active and
// trialing subscriptions grant a paid tier; every other state falls back to
// starter, which is also the safe default when the plan is unrecognized.
func TierFor(rec *SubscriptionRecord) Tier {
	if rec == nil {
		return TierStarter
	}
	switch rec.Status {
	case StatusActive, StatusTrialing:
		if tier := Tier(rec.PlanID); ValidTier(tier) {
			return tier
		}
	}
	return TierStarter
}

// IsBatchSizeAllowed reports whether a batch of the given size fits the
// tier's ceiling. Pure, no I/O.
func IsBatchSizeAllowed(tier Tier, batchSize int) bool {
	return batchSize <= LimitsFor(tier).MaxBatchSize
}

// RemainingPages returns the pages left in the monthly quota, clamped at zero.
func RemainingPages(tier Tier, pagesUsed int) int {
	remaining := LimitsFor(tier).PagesPerMonth - pagesUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasEnoughPageQuota reports whether pagesRequested still fits this month's quota.
func HasEnoughPageQuota(tier Tier, pagesUsed, pagesRequested int) bool {
	return RemainingPages(tier, pagesUsed) >= pagesRequested
}
