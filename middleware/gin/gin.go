// Package gin provides Gin middleware for tier-gated rate limiting.
package gin

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	gongin "github.com/gin-gonic/gin"

	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// UserIDExtractor extracts the user ID from a Gin context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

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
	OnRateLimited func(c *gongin.Context, decision entitlements.RateLimitDecision)

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *gongin.Context)
}

// Middleware creates a Gin middleware that enforces the per-tier rate limit
// for one action.
func Middleware(config Config) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		userID := config.GetUserID(c)
		if userID == "" {
			if config.OnUnauthorized != nil {
				config.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{
					"error": "unauthorized",
				})
			}
			return
		}

		ctx := c.Request.Context()
		tier := config.Lookup.GetTier(ctx, userID)
		limiter := config.Limiters.Limiter(tier, config.Action)

		decision, _ := limiter.Check(ctx, userID)
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			if config.OnRateLimited != nil {
				config.OnRateLimited(c, decision)
				c.Abort()
				return
			}
			retry := decision.RetryAfter(time.Now())
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gongin.H{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("Rate limit exceeded. Try again in %s.", retry),
				"retry_after": int(retry.Seconds()),
			})
			return
		}

		c.Next()
	}
}
