package entitlements

import "errors"

var (
	// ErrUnauthorized is returned when no authenticated user is present
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstreamBilling is returned when the billing provider call fails
	ErrUpstreamBilling = errors.New("billing provider request failed")

	// ErrCacheRead is returned when a cache read fails (distinct from a miss)
	ErrCacheRead = errors.New("cache read failed")

	// ErrCacheWrite is returned when a cache write fails after a successful fetch
	ErrCacheWrite = errors.New("cache write failed")

	// ErrCacheMiss is returned when a key is absent from the cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrProfileNotFound is returned when no durable profile exists for a user
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidTier is returned for a tier outside the closed set
	ErrInvalidTier = errors.New("invalid tier")
)
