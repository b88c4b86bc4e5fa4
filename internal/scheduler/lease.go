package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a cluster-wide mutual exclusion with an expiry.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// releaseScript deletes the key only while it still holds our token so an
// instance never frees a lease that expired and was taken by another.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLease implements Lease with SET NX PX.
type RedisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func NewRedisLease(rdb *redis.Client, key string) *RedisLease {
	return &RedisLease{rdb: rdb, key: key, token: uuid.NewString()}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
