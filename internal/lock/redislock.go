package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when the lock could not be taken before the
	// context ended.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrLost is returned when the lease could not be renewed while the
	// callback was running, e.g. because it expired and someone else took it.
	ErrLost = errors.New("lock: lease lost")
)

// Both scripts only touch the key while it still carries our token.
var (
	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
	maxRetry     = time.Second
)

// Locker serialises work per key across processes. Recalculations of one
// order hold the order's lock for the whole run.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// WithLock waits for the lock on key, then runs fn while holding it. The lease
// is ttl long and renewed every ttl/3 until fn returns; if a renewal finds the
// key gone or owned by someone else, fn's context is cancelled and WithLock
// reports ErrLost. The lock is released afterwards, even when fn fails.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key = l.key(key)
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer l.release(context.WithoutCancel(ctx), key, token)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		l.renew(runCtx, cancel, key, token, ttl)
	}()

	err := fn(runCtx)
	cancel(nil)
	<-renewed
	if cause := context.Cause(runCtx); errors.Is(cause, ErrLost) {
		return cause
	}
	return err
}

// acquire polls SETNX with a doubling pause, capped at maxRetry.
func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = defaultRetry
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case err != nil:
			return err
		case ok:
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, maxRetry)
	}
}

func (l Locker) renew(ctx context.Context, cancel context.CancelCauseFunc, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
		if ctx.Err() != nil {
			return
		}
		// a failed round trip keeps the current lease; only a missing or
		// foreign key ends the run
		if err == nil && n == 0 {
			cancel(fmt.Errorf("%w: %s", ErrLost, key))
			return
		}
	}
}

func (l Locker) key(key string) string {
	if l.Prefix == "" {
		return key
	}
	return l.Prefix + ":" + key
}

func (l Locker) release(ctx context.Context, key, token string) {
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
