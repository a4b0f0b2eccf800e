// Package billing defines the provider-agnostic contracts the entitlement
// core consumes: an API client for fetching authoritative subscription state,
// and the processed-event ledger that makes webhook delivery idempotent.
package billing

import (
	"context"
	"time"
)

// PaymentMethod is the card summary attached to a subscription.
type PaymentMethod struct {
	Brand string
	Last4 string
}

// Subscription is the provider-neutral shape of the most recent subscription
// for a customer, already flattened from whatever the provider's API returns.
type Subscription struct {
	ID                 string
	Status             string
	PriceID            string
	ProductID          string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	PaymentMethod      *PaymentMethod
	Created            int64
}

// Product is provider product metadata, used to label plans in admin surfaces.
type Product struct {
	ID   string
	Name string
}

// Client is the outbound API surface of the billing provider. Implementations
// authenticate and time-box every call; a hung provider must not hang the
// calling handler.
type Client interface {
	// LatestSubscription returns the customer's most recent subscription across
	// all statuses, with the default payment method expanded. It returns
	// (nil, nil) when the customer has no subscription at all.
	LatestSubscription(ctx context.Context, customerID string) (*Subscription, error)

	// Product retrieves product metadata by ID.
	Product(ctx context.Context, productID string) (*Product, error)
}

// ProcessedEvent is one row of the idempotency ledger.
type ProcessedEvent struct {
	EventID     string
	ProcessedAt time.Time
}

// EventLedger records which provider events have been handled. The insert in
// MarkProcessed is the serialization point for concurrent deliveries of the
// same event: uniqueness on the event ID is enforced by the store, not by
// application-level locking.
type EventLedger interface {
	// HasProcessed reports whether the event was already handled.
	HasProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed commits the event to the ledger. A second call for the
	// same ID fails with ErrDuplicateEvent.
	MarkProcessed(ctx context.Context, eventID string) error
}
