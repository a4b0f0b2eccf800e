// Package redis provides Redis implementations of the entitlements cache and
// rate-limit store. The sliding-window step runs as a Lua script so the
// expire/count/record sequence is a single atomic operation.
package redis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moemoe9876/ingestio-sub002/pkg/entitlements"
)

// Config holds Redis storage configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "ingestio:")
	KeyPrefix string

	// RecordTTL is the TTL for subscription records and mappings
	// (0 = no expiration)
	RecordTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "ingestio:",
		RecordTTL: 24 * time.Hour,
	}
}

// Cache implements entitlements.Cache over a Redis client.
type Cache struct {
	client redis.UniversalClient
	config Config
}

// NewCache creates a Redis cache adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func NewCache(client redis.UniversalClient, config Config) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ingestio:"
	}
	return &Cache{client: client, config: config}, nil
}

// Get implements entitlements.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.config.KeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, entitlements.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entitlements.ErrCacheRead, err)
	}
	return data, nil
}

// Set implements entitlements.Cache. The SET is a single atomic key write;
// concurrent readers see the old or the new value, never a torn one.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.config.KeyPrefix+key, value, c.config.RecordTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", entitlements.ErrCacheWrite, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// RateLimitStore implements entitlements.RateLimitStore with a sorted-set
// sliding window per key.
type RateLimitStore struct {
	client redis.UniversalClient
	prefix string
	script *redis.Script
}

// NewRateLimitStore creates a Redis sliding-window store.
func NewRateLimitStore(client redis.UniversalClient, keyPrefix string) (*RateLimitStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "ingestio:"
	}
	return &RateLimitStore{
		client: client,
		prefix: keyPrefix,
		script: redis.NewScript(slidingWindowScript),
	}, nil
}

// slidingWindowScript removes timestamps outside the window, counts what is
// left, and records the request if it fits. Timestamps are milliseconds; the
// member carries a nonce so same-millisecond requests stay distinct.
const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	local cutoff = now - window
	redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)

	local count = redis.call('ZCARD', key)

	local allowed = 1
	local remaining = limit - count
	local resetTime = now + window

	if count >= limit then
		allowed = 0
		remaining = 0
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if oldest and #oldest >= 2 then
			local oldestTime = tonumber(oldest[2])
			if oldestTime then
				resetTime = oldestTime + window
			end
		end
	else
		redis.call('ZADD', key, now, member)
		remaining = limit - count - 1
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if oldest and #oldest >= 2 then
			local oldestTime = tonumber(oldest[2])
			if oldestTime then
				resetTime = oldestTime + window
			end
		end
	end

	if ttl > 0 then
		redis.call('PEXPIRE', key, ttl)
	end

	return {allowed, remaining, resetTime}
`

// Take implements entitlements.RateLimitStore.
func (s *RateLimitStore) Take(ctx context.Context, key string, limit int, window time.Duration) (entitlements.RateLimitDecision, error) {
	nowMs := time.Now().UnixMilli()
	windowMs := window.Milliseconds()
	ttlMs := windowMs * 2 // keep the set for 2x window to allow cleanup
	member := fmt.Sprintf("%d-%d", nowMs, rand.Int63())

	result, err := s.script.Run(
		ctx,
		s.client,
		[]string{s.prefix + key},
		nowMs,
		limit,
		windowMs,
		ttlMs,
		member,
	).Result()
	if err != nil {
		return entitlements.RateLimitDecision{}, fmt.Errorf("failed to execute rate limit script: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return entitlements.RateLimitDecision{}, fmt.Errorf("unexpected result format from rate limit script")
	}

	allowedInt, ok := resultSlice[0].(int64)
	if !ok {
		return entitlements.RateLimitDecision{}, fmt.Errorf("invalid allowed value")
	}
	remainingInt, ok := resultSlice[1].(int64)
	if !ok {
		return entitlements.RateLimitDecision{}, fmt.Errorf("invalid remaining value")
	}
	resetInt, ok := resultSlice[2].(int64)
	if !ok {
		return entitlements.RateLimitDecision{}, fmt.Errorf("invalid reset time value")
	}

	return entitlements.RateLimitDecision{
		Allowed:   allowedInt == 1,
		Limit:     limit,
		Remaining: int(remainingInt),
		ResetAt:   time.UnixMilli(resetInt).UTC(),
	}, nil
}
