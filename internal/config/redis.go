package config

// Redis backs the tier availability cache, distributed rate limiting of
// the reserve endpoint and the reconciler lease that keeps a single
// instance sweeping at a time.  When it is unreachable at startup callers
// degrade: the cache and rate limiter are bypassed and every instance
// sweeps, which the per-order guard keeps safe.

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings.
type RedisConfig struct {
    Addr        string
    Password    string
    DB          int
    TLS         bool
    DialTimeout time.Duration
}

// LoadRedisConfig reads REDIS_HOST and REDIS_PORT (or the REDIS_ADDR
// shorthand; host/port win if both are set), REDIS_PASSWORD, REDIS_DB,
// REDIS_TLS and REDIS_DIAL_TIMEOUT.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
        addr = net.JoinHostPort(host, port)
    }
    return RedisConfig{
        Addr:        addr,
        Password:    envStr("REDIS_PASSWORD", ""),
        DB:          envInt("REDIS_DB", 0),
        TLS:         envBool("REDIS_TLS", false),
        DialTimeout: envDur("REDIS_DIAL_TIMEOUT", 2*time.Second),
    }
}

// Options converts rc into go-redis options.
func (rc RedisConfig) Options() *redis.Options {
    opts := &redis.Options{
        Addr:        rc.Addr,
        Password:    rc.Password,
        DB:          rc.DB,
        DialTimeout: rc.DialTimeout,
    }
    if rc.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts
}

// NewRedisClient connects and pings.  On failure the client is closed and
// the error returned so the caller can run without Redis.
func NewRedisClient(ctx context.Context, rc RedisConfig) (*redis.Client, error) {
    client := redis.NewClient(rc.Options())
    ctx, cancel := context.WithTimeout(ctx, rc.DialTimeout+time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis %s: %w", rc.Addr, err)
    }
    return client, nil
}
