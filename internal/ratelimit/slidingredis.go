package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rule bounds how many attempts a key may make inside a sliding window.
type Rule struct {
	Window time.Duration
	Max    int
}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a sliding window limiter backed by Redis sorted sets. Each
// attempt is a member scored by its timestamp; members older than the window
// are pruned before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records an attempt for key and reports whether it fits the rule.
// A nil client or a non-positive rule allows everything.
func (l Limiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := l.now()
	reset := now.Add(rule.Window)
	if l.Client == nil || rule.Max <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true, Remaining: rule.Max, ResetAt: reset}, nil
	}

	redisKey := l.Prefix + ":" + key
	cutoff := float64(now.Add(-rule.Window).UnixNano())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{ResetAt: reset}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	current := int(count.Val())
	remaining := rule.Max - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: current <= rule.Max, Remaining: remaining, ResetAt: reset}, nil
}
