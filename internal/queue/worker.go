package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-pricing/internal/resilience"
)

const (
	idlePoll     = 50 * time.Millisecond
	maxDueWait   = 100 * time.Millisecond
	tracerName   = "github.com/noah-isme/toko-pricing/internal/queue"
	statusOK     = "success"
	statusRetry  = "retry"
	statusDead   = "dead"
	defaultRetry = 200 * time.Millisecond
)

var nopLogger = zerolog.Nop()

// Worker consumes one task kind. Claimed tasks sit in a processing set scored
// by their visibility deadline; a sweep puts them back on the queue when a
// worker dies or stalls past that deadline.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds a single handler call. Keep it below
	// VisibilityTimeout so a slow task is cancelled before it is redelivered.
	SoftDeadline time.Duration
	Handler      func(context.Context, Task) error
	RetryBase    time.Duration
	RetryJitter  float64
	Store        Store
	Logger       *zerolog.Logger
}

// consumer is a Worker with its defaults resolved for one Run.
type consumer struct {
	Worker
	kind          string
	queueKey      string
	processingKey string
	visibility    time.Duration
	retryBase     time.Duration
	log           zerolog.Logger
}

// Run claims and handles tasks until ctx is cancelled, then waits for the
// in-flight handlers before returning nil.
func (w Worker) Run(ctx context.Context) error {
	c, err := w.resolve()
	if err != nil {
		return err
	}
	sem := make(chan struct{}, max(w.Concurrency, 1))
	var wg sync.WaitGroup
	sweep := time.NewTicker(c.visibility / 2)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-sweep.C:
			if err := c.requeueExpired(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		default:
		}

		msg, raw, wait, err := c.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return err
		}
		if raw == "" {
			pause(ctx, wait)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.process(ctx, raw, msg)
		}()
	}
}

func (w Worker) resolve() (*consumer, error) {
	if w.R == nil {
		return nil, errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return nil, errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return nil, errors.New("queue: worker kind is required")
	}
	c := &consumer{Worker: w, kind: kind, visibility: w.VisibilityTimeout, retryBase: w.RetryBase}
	if c.visibility <= 0 {
		c.visibility = 30 * time.Second
	}
	if c.retryBase <= 0 {
		c.retryBase = defaultRetry
	}
	k := keys{prefix: w.Prefix}
	c.queueKey, c.processingKey = k.queue(kind), k.processing(kind)
	c.log = nopLogger
	if w.Logger != nil {
		c.log = *w.Logger
	}
	c.log = c.log.With().Str("kind", kind).Logger()
	return c, nil
}

// claim pops the earliest task. An empty raw means nothing was claimed and
// the caller should pause for wait. Tasks that are not due yet go back with
// their original score.
func (c *consumer) claim(ctx context.Context) (envelope, string, time.Duration, error) {
	res, err := c.R.ZPopMin(ctx, c.queueKey, 1).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(res) == 0) {
		return envelope{}, "", idlePoll, nil
	}
	if err != nil {
		return envelope{}, "", 0, err
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return envelope{}, "", 0, nil
	}
	msg, err := decodeEnvelope(member)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable task")
		return envelope{}, "", 0, nil
	}
	if early := time.Duration(msg.AvailableAt - time.Now().UnixNano()); early > 0 {
		c.R.ZAdd(ctx, c.queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: member})
		return envelope{}, "", min(early, maxDueWait), nil
	}

	msg.Attempt++
	raw, err := msg.encode()
	if err != nil {
		return envelope{}, "", 0, nil
	}
	deadline := time.Now().Add(c.visibility).UnixNano()
	if err := c.R.ZAdd(ctx, c.processingKey, redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
		return envelope{}, "", 0, err
	}
	return msg, raw, 0, nil
}

func (c *consumer) process(ctx context.Context, raw string, m envelope) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, m.Trace)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "queue.process "+c.kind,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("queue.kind", c.kind), attribute.Int("queue.attempt", m.Attempt)))
	defer span.End()

	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if c.SoftDeadline > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, c.SoftDeadline)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	err := c.Handler(jobCtx, m.task())
	cancel()

	// bookkeeping must survive the job context ending
	bg := context.WithoutCancel(ctx)
	if err == nil {
		c.ack(bg, raw, m)
		recordProcessed(c.kind, statusOK)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.fail(bg, raw, m, err)
}

// fail either reschedules m with backoff or, once its attempts are spent,
// moves it to the dead letter store.
func (c *consumer) fail(ctx context.Context, raw string, m envelope, cause error) {
	_ = c.R.ZRem(ctx, c.processingKey, raw).Err()
	log := c.log.With().Str("idempotency_key", m.Key).Int("attempt", m.Attempt).Logger()

	if m.MaxAttempts > 0 && m.Attempt >= m.MaxAttempts {
		entry := DLQEntry{
			Kind:           m.Kind,
			IdempotencyKey: m.Key,
			Payload:        m.Payload,
			Attempts:       m.Attempt,
			LastError:      cause.Error(),
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := c.store().InsertDLQ(ctx, entry); err != nil {
			log.Error().Err(err).Msg("dead letter insert failed")
		}
		c.releaseKey(ctx, m)
		recordProcessed(c.kind, statusDead)
		log.Warn().Err(cause).Msg("task moved to dead letter queue")
		return
	}

	delay := resilience.Backoff(c.retryBase, m.Attempt, c.RetryJitter)
	m.AvailableAt = time.Now().Add(delay).UnixNano()
	if err := schedule(ctx, c.R, c.queueKey, m); err != nil {
		log.Error().Err(err).Msg("reschedule failed")
		return
	}
	recordProcessed(c.kind, statusRetry)
	log.Info().Err(cause).Dur("retry_in", delay).Msg("task failed, retrying")
}

func (c *consumer) ack(ctx context.Context, raw string, m envelope) {
	_ = c.R.ZRem(ctx, c.processingKey, raw).Err()
	c.releaseKey(ctx, m)
}

func (c *consumer) releaseKey(ctx context.Context, m envelope) {
	if m.Key != "" {
		_ = c.R.Del(ctx, keys{prefix: c.Prefix}.dedup(m.Kind, m.Key)).Err()
	}
}

// requeueExpired returns tasks whose visibility deadline passed to the queue,
// due immediately. ZRem decides the winner when several workers sweep at once.
func (c *consumer) requeueExpired(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixNano())
	due, err := c.R.ZRangeByScore(ctx, c.processingKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		m, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		if n, err := c.R.ZRem(ctx, c.processingKey, raw).Result(); err != nil || n == 0 {
			continue
		}
		m.AvailableAt = time.Now().UnixNano()
		_ = schedule(ctx, c.R, c.queueKey, m)
		c.log.Warn().Int("attempt", m.Attempt).Msg("visibility timeout expired, task requeued")
	}
	return nil
}

func (c *consumer) store() Store {
	if c.Store != nil {
		return c.Store
	}
	return RedisStore{R: c.R, Prefix: c.Prefix}
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func recordProcessed(kind, status string) {
	if QueueProcessedTotal != nil {
		QueueProcessedTotal.WithLabelValues(kind, status).Inc()
	}
}
