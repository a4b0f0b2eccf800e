// Package stripe implements the billing contracts against the Stripe API:
// an outbound client for fetching authoritative subscription state and the
// inbound webhook endpoint that keeps the cache in sync with billing events.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
)

const (
	providerName         = "stripe"
	subscriptionStatuses = "all"
)

// Client implements billing.Client using the Stripe v83 client API.
type Client struct {
	sc *stripe.Client
}

// NewClient creates a Stripe API client.
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	return &Client{sc: stripe.NewClient(strings.TrimSpace(apiKey))}, nil
}

// LatestSubscription returns the customer's most recent subscription, across
// all statuses, with the default payment method expanded. (nil, nil) means
// the customer has no subscription of any status.
func (c *Client) LatestSubscription(ctx context.Context, customerID string) (*billing.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String(subscriptionStatuses)
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.default_payment_method")

	for sub, err := range c.sc.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, listError(customerID, err)
		}
		return normalizeSubscription(sub), nil
	}

	return nil, nil
}

// listError maps a subscription-list failure to the provider-neutral error
// taxonomy. Stripe reports an unknown customer as resource_missing rather
// than an empty list.
func listError(customerID string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, customerID)
	}
	return fmt.Errorf("stripe: list subscriptions: %w", err)
}

// Product retrieves product metadata by ID.
func (c *Client) Product(ctx context.Context, productID string) (*billing.Product, error) {
	prod, err := c.sc.V1Products.Retrieve(ctx, productID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve product: %w", err)
	}
	return &billing.Product{ID: prod.ID, Name: prod.Name}, nil
}

// normalizeSubscription flattens a Stripe subscription into the
// provider-neutral shape. Period boundaries live on the subscription item in
// the v83 API, so they are read from the first item.
func normalizeSubscription(sub *stripe.Subscription) *billing.Subscription {
	out := &billing.Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Created:           sub.Created,
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodStart = item.CurrentPeriodStart
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Product != nil {
				out.ProductID = item.Price.Product.ID
			}
		}
	}

	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.Card != nil {
		out.PaymentMethod = &billing.PaymentMethod{
			Brand: string(sub.DefaultPaymentMethod.Card.Brand),
			Last4: sub.DefaultPaymentMethod.Card.Last4,
		}
	}

	return out
}
