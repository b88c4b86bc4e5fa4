package config

import (
    "log"
    "strings"
    "time"
)

// Key strategies understood by the reserve rate limiter.  They pick which
// request attributes share one bucket.
var rateKeyStrategies = map[string]bool{
    "ip": true, "user": true, "route": true, "ip_user": true, "user_route": true, "ip_user_route": true,
}

// RateLimitConfig tunes the token bucket in front of POST /v1/orders.
// Buckets are keyed per buyer and route by default so one buyer's burst
// does not throttle others behind a shared NAT.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // bucket size, the allowed burst of reservations
    RefillTokens   int           // tokens added every RefillInterval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets expire after this
    KeyStrategy    string
    Prefix         string
    Debug          bool // expose X-RateLimit-* headers
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  RATE_LIMIT_BURST and
// RATE_LIMIT_REFILL_EVERY are shorthands that override capacity and refill.
func LoadRateLimitConfig() RateLimitConfig {
    rc := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 10),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", "user_route")),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:reserve"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
        rc.Capacity = b
    }
    if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
        rc.RefillTokens = 1
        rc.RefillInterval = every
    }
    if !rateKeyStrategies[rc.KeyStrategy] {
        log.Printf("config: unknown RATE_LIMIT_KEY_STRATEGY %q, using ip_user_route", rc.KeyStrategy)
        rc.KeyStrategy = "ip_user_route"
    }
    return rc.normalized()
}

// normalized clamps values the token bucket script cannot work with.  The
// TTL never drops below five refill intervals so a bucket outlives the
// time it takes to refill.
func (rc RateLimitConfig) normalized() RateLimitConfig {
    if rc.Capacity < 1 {
        rc.Capacity = 1
    }
    if rc.RefillTokens < 1 {
        rc.RefillTokens = 1
    }
    if rc.RefillInterval <= 0 {
        rc.RefillInterval = time.Second
    }
    if minTTL := 5 * rc.RefillInterval; rc.TTL < minTTL {
        rc.TTL = minTTL
    }
    return rc
}
