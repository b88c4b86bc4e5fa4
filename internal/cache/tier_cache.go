// Package cache keeps a short-lived Redis copy of ticket tier
// availability for the public read path.  The store remains the source of
// truth: booking and release transactions invalidate the entry after they
// commit, and reads fall back to the store on any Redis error.
//
// Each tier has a version counter next to its entry.  Invalidate bumps it,
// and a read-through fill only lands when the version it saw before
// reading the store is still current.  A fill that raced a commit is
// dropped instead of caching the pre-commit stock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// setScript writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setScript = redis.NewScript(`
local v = redis.call('GET', KEYS[2])
if (v or '0') ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// invalidateScript bumps the version and drops the entry in one step.
var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('DEL', KEYS[1])
return 1
`)

// TierCache caches tiers as JSON under {prefix}:tier:{id} with the version
// counter under {prefix}:tier:{id}:ver.
type TierCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewTierCache(rdb *redis.Client, ttl time.Duration, prefix string) *TierCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "cache"
	}
	return &TierCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *TierCache) key(id uint64) string {
	return fmt.Sprintf("%s:tier:%d", c.prefix, id)
}

func (c *TierCache) versionKey(id uint64) string { return c.key(id) + ":ver" }

// Get returns the cached tier.  ok is false on a miss or any Redis error.
func (c *TierCache) Get(ctx context.Context, id uint64) (*model.TicketTier, bool) {
	bs, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var t model.TicketTier
	if err := json.Unmarshal(bs, &t); err != nil {
		return nil, false
	}
	return &t, true
}

// Version returns the current version of the entry for id.  A tier that
// was never invalidated is at version 0.
func (c *TierCache) Version(ctx context.Context, id uint64) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion stores t for the configured TTL unless the entry was
// invalidated after version was read.  It reports whether t was stored.
func (c *TierCache) SetIfVersion(ctx context.Context, t *model.TicketTier, version int64) (bool, error) {
	bs, err := json.Marshal(t)
	if err != nil {
		return false, err
	}
	stored, err := setScript.Run(ctx, c.rdb,
		[]string{c.key(t.ID), c.versionKey(t.ID)},
		strconv.FormatInt(version, 10), string(bs), strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate bumps the version of id and drops its entry.
func (c *TierCache) Invalidate(ctx context.Context, id uint64) error {
	return invalidateScript.Run(ctx, c.rdb, []string{c.key(id), c.versionKey(id)}).Err()
}
