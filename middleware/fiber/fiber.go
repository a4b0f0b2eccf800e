// Package fiber provides Fiber middleware for tier-gated rate limiting.
package fiber

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// UserIDExtractor extracts the user ID from a Fiber context.
// Return empty string if the user is not authenticated.
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnRateLimited func(c *fiber.Ctx, decision entitlements.RateLimitDecision) error

	// OnUnauthorized is called when the user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *fiber.Ctx) error
}

// Middleware creates a Fiber handler that enforces the per-tier rate limit
// for one action.
func Middleware(config Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := config.GetUserID(c)
		if userID == "" {
			if config.OnUnauthorized != nil {
				return config.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		ctx := c.UserContext()
		tier := config.Lookup.GetTier(ctx, userID)
		limiter := config.Limiters.Limiter(tier, config.Action)

		decision, _ := limiter.Check(ctx, userID)
		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			if config.OnRateLimited != nil {
				return config.OnRateLimited(c, decision)
			}
			retry := decision.RetryAfter(time.Now())
			c.Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("Rate limit exceeded. Try again in %s.", retry),
				"retry_after": int(retry.Seconds()),
			})
		}

		return c.Next()
	}
}
