// Package echo provides Echo middleware for tier-gated rate limiting.
package echo

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// UserIDExtractor extracts the user ID from an Echo context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration.
type Config struct {
	// Lookup resolves the caller's subscription tier (required).
	Lookup *entitlements.LookupService

	// Limiters builds the per-action limiter (required).
	Limiters *entitlements.LimiterFactory

	// Action names the metered feature this route serves (required).
	Action string

	// GetUserID extracts user ID from context (required).
	GetUserID UserIDExtractor

	// OnRateLimited is called when the window is exhausted.
	// If nil, returns 429 JSON with rate limit headers.
	OnRateLimited func(c echo.Context, decision entitlements.RateLimitDecision) error

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c echo.Context) error
}

// Middleware creates an Echo middleware that enforces the per-tier rate
// limit for one action.
func Middleware(config Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := config.GetUserID(c)
			if userID == "" {
				if config.OnUnauthorized != nil {
					return config.OnUnauthorized(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			ctx := c.Request().Context()
			tier := config.Lookup.GetTier(ctx, userID)
			limiter := config.Limiters.Limiter(tier, config.Action)

			decision, _ := limiter.Check(ctx, userID)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				if config.OnRateLimited != nil {
					return config.OnRateLimited(c, decision)
				}
				retry := decision.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "rate limit exceeded",
					"message":     fmt.Sprintf("Rate limit exceeded. Try again in %s.", retry),
					"retry_after": int(retry.Seconds()),
				})
			}

			return next(c)
		}
	}
}
