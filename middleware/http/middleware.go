// Package http provides HTTP middleware that gates metered actions behind
// the caller's tier: resolve the subscription, run the per-action sliding
// window, and reject with 429 plus a computed retry delay on denial.
package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// UserIDExtractor extracts the user ID from an HTTP request.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration.
type Config struct {
	// Lookup resolves the caller's subscription tier (required).
	Lookup *entitlements.LookupService

	// Limiters builds the per-action limiter (required).
	Limiters *entitlements.LimiterFactory

	// Action names the metered feature this route serves, e.g. "extraction"
	// or "schema-generation". Independent actions never share a window (required).
	Action string

	// GetUserID extracts user ID from the request (required).
	GetUserID UserIDExtractor

	// OnRateLimited is called when the window is exhausted.
	// If nil, returns 429 with rate limit headers and a retry message.
	OnRateLimited func(w http.ResponseWriter, r *http.Request, decision entitlements.RateLimitDecision)

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)
}

// Middleware creates an HTTP middleware that enforces the per-tier rate limit
// for one action.
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, entitlements.ErrUnauthorized.Error(), http.StatusUnauthorized)
				}
				return
			}

			ctx := r.Context()
			tier := config.Lookup.GetTier(ctx, userID)
			limiter := config.Limiters.Limiter(tier, config.Action)

			// Store errors fail closed; the denial below already covers them.
			decision, _ := limiter.Check(ctx, userID)
			SetRateLimitHeaders(w, decision)

			if !decision.Allowed {
				if config.OnRateLimited != nil {
					config.OnRateLimited(w, r, decision)
				} else {
					retry := decision.RetryAfter(time.Now())
					w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
					msg := fmt.Sprintf("Rate limit exceeded. Try again in %s.", retry)
					http.Error(w, msg, http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders writes the standard X-RateLimit-* headers for a decision.
func SetRateLimitHeaders(w http.ResponseWriter, decision entitlements.RateLimitDecision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}
