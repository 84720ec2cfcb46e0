package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// ErrLockNotHeld is returned by release when the lock expired or was taken over.
var ErrLockNotHeld = errors.New("lock: not held")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLocker implements progress.UserLocker across processes with SET NX PX.
type UserLocker struct {
	cache    *Cache
	ttl      time.Duration
	interval time.Duration
}

// NewUserLocker creates a distributed locker. ttl <= 0 means TTLUserLock.
func NewUserLocker(cache *Cache, ttl time.Duration) *UserLocker {
	if ttl <= 0 {
		ttl = TTLUserLock
	}
	return &UserLocker{cache: cache, ttl: ttl, interval: 25 * time.Millisecond}
}

// Acquire polls until the user's lock is free or ctx is done.
func (l *UserLocker) Acquire(ctx context.Context, userID string) (progress.ReleaseFunc, error) {
	key := LockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.release(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *UserLocker) release(key, token string) progress.ReleaseFunc {
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
}
