package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lease is a Redis SET NX PX lock shared by all replicas.
type Lease struct {
	rc *redis.Client
}

// NewLease wraps rc. With a nil client every Acquire succeeds, which is right for a single replica.
func NewLease(rc *redis.Client) *Lease {
	return &Lease{rc: rc}
}

// Acquire tries to take key for ttl. The returned release func is always non-nil.
// A Redis error fails open so a flaky cache never stalls the scheduler.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, func()) {
	noop := func() {}
	if l == nil || l.rc == nil {
		return true, noop
	}
	token := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		Sugar.Warnf("lease acquire failed key=%s err=%v", key, err)
		return true, noop
	}
	if !ok {
		return false, noop
	}
	return true, func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rc, []string{key}, token).Err(); err != nil {
			Sugar.Warnf("lease release failed key=%s err=%v", key, err)
		}
	}
}
