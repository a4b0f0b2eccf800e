package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/moemoe9876/ingestio-sub002/pkg/billing"
	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

const maxWebhookBody = 256 * 1024

// WebhookConfig holds the webhook endpoint dependencies.
type WebhookConfig struct {
	// WebhookSecret is the shared secret used to verify event signatures (required).
	WebhookSecret string

	// Engine performs the sync triggered by billing events (required).
	Engine *entitlements.SyncEngine

	// Ledger is the processed-event ledger enforcing at-most-once handling (required).
	Ledger billing.EventLedger

	// Logger defaults to NoopLogger.
	Logger entitlements.Logger

	// Metrics defaults to NoopMetrics.
	Metrics entitlements.Metrics
}

// Webhook is the HTTP endpoint Stripe delivers billing events to.
//
// Protocol: verify the signature before any state lookup, skip events already
// in the ledger, run the sync, then mark the event processed. Marking happens
// only after the business logic succeeds; if the mark itself fails the
// provider still sees success, because retrying a side effect that already
// happened is worse than the narrow duplicate-processing window this accepts.
type Webhook struct {
	secret  string
	engine  *entitlements.SyncEngine
	ledger  billing.EventLedger
	logger  entitlements.Logger
	metrics entitlements.Metrics
}

// NewWebhook creates the webhook endpoint.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("event ledger is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &entitlements.NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &entitlements.NoopMetrics{}
	}

	return &Webhook{
		secret:  strings.TrimSpace(cfg.WebhookSecret),
		engine:  cfg.Engine,
		ledger:  cfg.Ledger,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Handler returns the http.Handler for POST /webhooks/billing.
func (wh *Webhook) Handler() http.Handler {
	return http.HandlerFunc(wh.handle)
}

func (wh *Webhook) handle(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := wh.verifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		// Signature mismatch is rejected before any state lookup.
		wh.logger.Warn("webhook signature verification failed",
			entitlements.Field{Key: "error", Value: err.Error()})
		http.Error(w, billing.ErrInvalidSignature.Error(), http.StatusBadRequest)
		return
	}

	if err := wh.process(r.Context(), &event); err != nil {
		wh.logger.Error("webhook processing failed",
			entitlements.Field{Key: "event_id", Value: event.ID},
			entitlements.Field{Key: "event_type", Value: string(event.Type)},
			entitlements.Field{Key: "error", Value: err.Error()})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// verifyEvent checks the Stripe-Signature header against the shared secret.
// Failures are reported as billing.ErrInvalidSignature so callers can match
// them without depending on stripe's error types.
func (wh *Webhook) verifyEvent(body []byte, sig string) (stripe.Event, error) {
	event, err := stripe.ConstructEvent(body, sig, wh.secret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}
	return event, nil
}

// process runs the idempotency protocol for one verified event.
func (wh *Webhook) process(ctx context.Context, event *stripe.Event) error {
	start := time.Now()
	defer func() { wh.metrics.RecordWebhookDuration(time.Since(start)) }()

	processed, err := wh.ledger.HasProcessed(ctx, event.ID)
	if err != nil {
		wh.metrics.RecordWebhookEvent(string(event.Type), "error")
		return fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		// At-least-once delivery: a redelivered event is a successful no-op.
		wh.logger.Info("skipping already processed event",
			entitlements.Field{Key: "event_id", Value: event.ID})
		wh.metrics.RecordWebhookEvent(string(event.Type), "skipped")
		return nil
	}

	handled, err := wh.dispatch(ctx, event)
	if err != nil {
		wh.metrics.RecordWebhookEvent(string(event.Type), "error")
		return err
	}
	if !handled {
		wh.metrics.RecordWebhookEvent(string(event.Type), "ignored")
		return nil
	}
	wh.metrics.RecordWebhookEvent(string(event.Type), "synced")

	if err := wh.ledger.MarkProcessed(ctx, event.ID); err != nil {
		if errors.Is(err, billing.ErrDuplicateEvent) {
			// A concurrent delivery won the insert race after we both ran the
			// business logic. Both derived from the same upstream truth.
			return nil
		}
		// The side effect already happened; the provider must not retry it.
		wh.logger.Error("failed to mark event processed",
			entitlements.Field{Key: "event_id", Value: event.ID},
			entitlements.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// dispatch routes a verified event to the sync engine. It reports whether the
// event was actually handled; unknown types are ignored without touching the
// ledger.
func (wh *Webhook) dispatch(ctx context.Context, event *stripe.Event) (bool, error) {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
		"checkout.session.completed":
	default:
		return false, nil
	}

	customerID, err := extractCustomerID(event.Data.Raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", billing.ErrInvalidPayload, err)
	}
	if customerID == "" {
		// Not tied to a customer (e.g. one-off invoice) - nothing to sync.
		return false, nil
	}

	start := time.Now()
	if _, err := wh.engine.Sync(ctx, customerID); err != nil {
		return false, err
	}
	wh.logger.Info("subscription synced from webhook",
		entitlements.Field{Key: "event_type", Value: string(event.Type)},
		entitlements.Field{Key: "customer_id", Value: customerID},
		entitlements.Field{Key: "duration", Value: time.Since(start).String()})
	return true, nil
}

// extractCustomerID pulls the customer reference out of an event payload.
// Stripe serializes it either as a bare ID string or as an expanded object.
func extractCustomerID(raw json.RawMessage) (string, error) {
	var payload struct {
		Customer json.RawMessage `json:"customer"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	if len(payload.Customer) == 0 {
		return "", nil
	}

	var id string
	if err := json.Unmarshal(payload.Customer, &id); err == nil {
		return id, nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload.Customer, &obj); err != nil {
		return "", err
	}
	return obj.ID, nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
