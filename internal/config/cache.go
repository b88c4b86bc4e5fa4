package config

import "time"

// CacheConfig defines settings for the Redis tier availability cache.
// When Enabled is false or no Redis client is configured, reads go
// straight to the store.  TTL bounds staleness for writers that bypass
// the engine (for example an admin editing stock in SQL); engine writes
// invalidate the entry immediately.
type CacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadCacheConfig reads CACHE_ENABLED, TIER_CACHE_TTL and CACHE_PREFIX.
// A non-positive TTL disables the cache since every entry would be stale
// on arrival.
func LoadCacheConfig() CacheConfig {
    cc := CacheConfig{
        Enabled: envBool("CACHE_ENABLED", true),
        TTL:     envDur("TIER_CACHE_TTL", 30*time.Second),
        Prefix:  envStr("CACHE_PREFIX", "cache"),
    }
    if cc.TTL <= 0 {
        cc.Enabled = false
    }
    return cc
}
