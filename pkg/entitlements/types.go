package entitlements

import (
	"math"
	"time"
)

// Status is the normalized subscription status as reported by the billing provider.
type Status string

const (
	StatusNone              Status = "none"
	StatusActive            Status = "active"
	StatusTrialing          Status = "trialing"
	StatusCanceled          Status = "canceled"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPastDue           Status = "past_due"
	StatusPaused            Status = "paused"
	StatusUnpaid            Status = "unpaid"
)

// PaymentMethod is the card summary attached to a subscription, safe to show to users.
type PaymentMethod struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// SubscriptionRecord is the canonical view of a user's billing state.
// It is created and overwritten only by the SyncEngine; every other component reads it.
// A record is always replaced wholesale, never mutated field by field.
//
// When Status is StatusNone all subscription fields are absent and CustomerID is null.
type SubscriptionRecord struct {
	Status             Status         `json:"status"`
	SubscriptionID     string         `json:"subscriptionId,omitempty"`
	CustomerID         *string        `json:"customerId"`
	PriceID            string         `json:"priceId,omitempty"`
	PlanID             string         `json:"planId,omitempty"`
	CurrentPeriodStart *int64         `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *int64         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  *bool          `json:"cancelAtPeriodEnd,omitempty"`
	PaymentMethod      *PaymentMethod `json:"paymentMethod,omitempty"`
}

// NoneRecord returns the record stored for customers without any subscription.
// CustomerID is deliberately nulled so "no subscription" records never carry a
// stale customer reference.
func NoneRecord() *SubscriptionRecord {
	return &SubscriptionRecord{Status: StatusNone, CustomerID: nil}
}

// HasSubscription reports whether the record represents a live billing relationship.
func (r *SubscriptionRecord) HasSubscription() bool {
	return r != nil && r.Status != StatusNone && r.Status != ""
}

// RateLimitDecision is the result of a single rate-limiter check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying,
// rounded up to a whole second and never negative.
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	secs := int64(math.Ceil(wait.Seconds()))
	return time.Duration(secs) * time.Second
}

// Profile is the durable per-user record kept in the relational store.
// StripeCustomerID is the source of truth for the user→customer mapping when
// the cache entry is missing or expired.
type Profile struct {
	UserID           string
	StripeCustomerID string
	Membership       string
	UpdatedAt        time.Time
}
