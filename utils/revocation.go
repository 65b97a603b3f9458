package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations remembers logged-out tokens until they would have expired anyway.
// Redis is used when available so every replica sees the logout; otherwise memory.
type Revocations struct {
	rc *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
}

func NewRevocations(rc *redis.Client) *Revocations {
	return &Revocations{rc: rc, local: map[string]time.Time{}}
}

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "jwt:revoked:" + hex.EncodeToString(sum[:])
}

// Revoke blocks token until expiresAt.
func (r *Revocations) Revoke(ctx context.Context, token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	key := revocationKey(token)
	if r.rc != nil {
		err := r.rc.Set(ctx, key, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("revoke token in redis failed, keeping it in memory: %v", err)
	}
	r.mu.Lock()
	r.local[key] = expiresAt
	r.mu.Unlock()
}

// Revoked reports whether token was logged out. Redis errors fail open.
func (r *Revocations) Revoked(ctx context.Context, token string) bool {
	key := revocationKey(token)
	if r.rc != nil {
		n, err := r.rc.Exists(ctx, key).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.local[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(r.local, key)
		return false
	}
	return true
}
