package queue_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/queue"
)

// A recalculation that overruns its soft deadline is abandoned; the task
// becomes visible again and the next attempt completes it.
func TestStalledRecalculationIsRetried(t *testing.T) {
	client := newRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "vis", DedupTTL: time.Minute, MaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type seen struct {
		attempt int
		orderID string
	}
	attempts := make(chan seen, 2)
	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "vis",
		Kind:              recalc,
		Concurrency:       1,
		VisibilityTimeout: 150 * time.Millisecond,
		SoftDeadline:      80 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Store:             queue.RedisStore{R: client, Prefix: "vis"},
		Logger:            &log,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			var body struct {
				OrderID string `json:"orderId"`
			}
			_ = json.Unmarshal(task.Payload, &body)
			attempts <- seen{attempt: task.Attempt, orderID: body.OrderID}
			if task.Attempt == 1 {
				<-jobCtx.Done()
				return jobCtx.Err()
			}
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	payload := []byte(`{"orderId":"o-7"}`)
	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{Kind: recalc, Payload: payload, IdempotencyKey: "o-7", MaxAttempts: 3}))

	require.Eventually(t, func() bool { return len(attempts) >= 2 }, 2*time.Second, 20*time.Millisecond)
	first, second := <-attempts, <-attempts
	require.Equal(t, seen{attempt: 1, orderID: "o-7"}, first)
	require.Equal(t, seen{attempt: 2, orderID: "o-7"}, second)
	<-done

	depth, err := enq.Depth(context.Background(), recalc)
	require.NoError(t, err)
	require.Zero(t, depth)
	inFlight, err := client.ZCard(context.Background(), "vis:"+recalc+":processing").Result()
	require.NoError(t, err)
	require.Zero(t, inFlight)
}
