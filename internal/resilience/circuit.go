package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpen is returned without calling through while a breaker is open, or
// while its single half-open probe is still in flight.
var ErrOpen = errors.New("resilience: breaker open")

// State of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings are shared by every breaker built from them. Each guarded
// collaborator still gets its own Breaker and its own outcome window.
type Settings struct {
	// MinRequests outcomes must be observed before the ratio is judged.
	MinRequests int
	// FailureRatio in (0,1] at which the breaker opens.
	FailureRatio float64
	// Window is how many recent outcomes count; defaults to 2*MinRequests.
	Window  int
	OpenFor time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s Settings) normalized() Settings {
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.Window < s.MinRequests {
		s.Window = 2 * s.MinRequests
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Breaker guards one collaborator, typically a remote tax or carrier
// service called from inside a pricing adapter. Outcomes are kept in a
// fixed ring so old successes cannot mask a fresh outage.
type Breaker struct {
	target string
	cfg    Settings

	mu       sync.Mutex
	state    State
	outcomes []bool // true = failure
	next     int
	filled   int
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a closed breaker labelled target in logs and metrics.
func NewBreaker(target string, s Settings) *Breaker {
	if target == "" {
		target = "default"
	}
	cfg := s.normalized()
	b := &Breaker{target: target, cfg: cfg, outcomes: make([]bool, cfg.Window)}
	b.publishState()
	return b
}

// Target is the label given at construction.
func (b *Breaker) Target() string { return b.target }

// Do calls fn if the breaker allows it and records the outcome. An error
// caused by the caller's own context ending is returned but not counted.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpen
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.mu.Lock()
		b.probing = false
		b.mu.Unlock()
		return err
	}
	b.Report(ctx, err == nil)
	return err
}

// Allow reports whether a call may proceed. After OpenFor an open breaker
// turns half-open and admits exactly one probe until it is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.transition(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records one outcome.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if b.filled == len(b.outcomes) && b.outcomes[b.next] {
		b.failures--
	}
	b.outcomes[b.next] = !success
	if !success {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.outcomes)
	if b.filled < len(b.outcomes) {
		b.filled++
	}

	if b.filled >= b.cfg.MinRequests && float64(b.failures)/float64(b.filled) >= b.cfg.FailureRatio {
		b.transition(ctx, Open)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Open {
		b.openedAt = b.cfg.Now()
	}
	clear(b.outcomes)
	b.next, b.filled, b.failures = 0, 0, 0
	b.publishState()

	BreakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}
	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Warn()
	if to == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("target", b.target).Str("from_state", from.String()).Str("to_state", to.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.target).Set(float64(b.state))
}
