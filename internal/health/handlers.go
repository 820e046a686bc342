package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/toko-pricing/internal/common"
)

const defaultTimeout = 300 * time.Millisecond

var draining atomic.Bool

// SetReady toggles readiness. The api command clears it when shutdown starts
// so load balancers stop routing before the server closes.
func SetReady(ready bool) { draining.Store(!ready) }

// Probe is one named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// RedisProbe pings client.
func RedisProbe(client *redis.Client) Probe {
	return Probe{Name: "redis", Check: func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}}
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Probes []Probe
	// Timeout bounds each probe.
	Timeout time.Duration
}

// Routes mounts /health/live and /health/ready.
func (h Handler) Routes(r chi.Router) {
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
}

// Live answers as long as the process serves HTTP.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and answers 503 if any of them fails or
// the process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "draining"})
		return
	}
	checks := h.run(r.Context())
	code, status := http.StatusOK, "ok"
	for _, v := range checks {
		if v != "ok" {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
	}
	if len(h.Probes) == 0 {
		code, status = http.StatusServiceUnavailable, "no probes configured"
	}
	common.JSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h Handler) run(ctx context.Context) map[string]string {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.Probes))
		g      errgroup.Group
	)
	for _, p := range h.Probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result := "ok"
			if err := p.Check(pctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			checks[p.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}
