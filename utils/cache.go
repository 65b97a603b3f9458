package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 30 * time.Second

// Cache is a small JSON cache over Redis. A nil client makes every call a miss.
type Cache struct {
	rc *redis.Client
}

// NewCache wraps rc; rc may be nil.
func NewCache(rc *redis.Client) *Cache {
	return &Cache{rc: rc}
}

// GetJSON decodes the cached value for key into out and reports a hit.
func (c *Cache) GetJSON(ctx context.Context, key string, out interface{}) bool {
	if c == nil || c.rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			Sugar.Debugf("cache get failed key=%s err=%v", key, err)
		}
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// SetJSON marshals v and stores it under key.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil || c.rc == nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// Invalidate deletes the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rc == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rc.Del(ctx, keys...).Err(); err != nil {
		Sugar.Warnf("cache invalidate failed keys=%v err=%v", keys, err)
	}
}
