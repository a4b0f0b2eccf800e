// Package entitlements keeps a billing provider's subscription state
// consistent with a fast-path cache and enforces per-tier usage limits.
//
// The SyncEngine is the single writer of canonical subscription records into
// the cache. The LookupService is the read path, with a cache → durable
// profile → synchronous sync fallback chain that degrades to the lowest tier
// instead of failing. The LimiterFactory and the pure quota policy functions
// gate every metered action by the tier the lookup resolves.
package entitlements
