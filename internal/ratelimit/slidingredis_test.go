package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := Limiter{Client: client, Prefix: "test", Now: func() time.Time { return now }}
	rule := Rule{Window: 2 * time.Second, Max: 2}
	ctx := context.Background()

	for i := 0; i < rule.Max; i++ {
		d, err := limiter.Allow(ctx, "key", rule)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, rule.Max-(i+1), d.Remaining)
	}

	d, err := limiter.Allow(ctx, "key", rule)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, now.Add(rule.Window), d.ResetAt)

	// other keys have their own window
	d, err = limiter.Allow(ctx, "other", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	now = now.Add(3 * time.Second)
	d, err = limiter.Allow(ctx, "key", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterWithoutRuleAllows(t *testing.T) {
	d, err := Limiter{}.Allow(context.Background(), "key", Rule{Window: time.Second, Max: 1})
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
