package blobreaper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// lockKey is the single key every reaper replica contends for; only one
// holder runs a sweep at a time.
const lockKey = "entitystore:blobreaper:lock"

// Lock is a Redis-backed mutual-exclusion lock scoped to one sweep pass,
// built the same way the teacher's queue/redis client is: a single
// *redis.Client constructed once and reused, with context-scoped calls
// rather than a long-lived background connection.
type Lock struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

// NewLock wraps an existing redis.Client. owner should be unique per
// process (e.g. hostname:pid) so a lock holder can tell its own key apart
// from a stale one left by a crashed replica.
func NewLock(client *redis.Client, owner string, ttl time.Duration) *Lock {
	return &Lock{client: client, owner: owner, ttl: ttl}
}

// Acquire attempts to become the sweep's sole runner. It returns false,
// nil if another replica currently holds the lock.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire reaper lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock, but only if this process is still the
// recorded owner, so a replica whose TTL already expired and was
// reacquired elsewhere can't release someone else's lock out from under
// them.
func (l *Lock) Release(ctx context.Context) error {
	current, err := l.client.Get(ctx, lockKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reaper lock: %w", err)
	}
	if current != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("release reaper lock: %w", err)
	}
	return nil
}
