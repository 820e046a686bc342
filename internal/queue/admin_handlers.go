package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/common"
)

const maxPage = 200

// AdminHandler serves operator endpoints for queue inspection and dead
// letter handling.
type AdminHandler struct {
	Store             Store
	Queue             Enqueuer
	DefaultKind       string
	PageSize          int
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

// Routes mounts the admin endpoints on r.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Route("/admin/queue", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/dlq", h.ListDLQ)
		r.Post("/dlq/replay", h.ReplayDLQ)
		r.Delete("/dlq/{id}", h.DiscardDLQ)
	})
}

// ListDLQ pages through the dead letters of a kind, newest first.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.ready(w, r.URL.Query().Get("kind"), false)
	if !ok {
		return
	}
	limit := common.QueryInt(r, "limit", h.pageSize())
	if limit <= 0 || limit > maxPage {
		limit = h.pageSize()
	}
	ctx := r.Context()
	entries, err := h.Store.ListDLQ(ctx, kind, limit, common.QueryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.Store.CountDLQ(ctx, kind)
	if err != nil {
		h.fail(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "total": total, "kind": kind})
}

// ReplayDLQ puts dead letters back on the queue, either the listed ids or the
// newest `limit` entries of the kind. Replayed tasks start over at attempt one
// with a fresh dedup window.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs   []string `json:"ids"`
		Kind  string   `json:"kind"`
		Limit int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	kind, ok := h.ready(w, req.Kind, true)
	if !ok {
		return
	}
	ctx := r.Context()
	ids := uniqueStrings(req.IDs)
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = h.pageSize()
		}
		entries, err := h.Store.ListDLQ(ctx, kind, min(limit, maxPage), 0)
		if err != nil {
			h.fail(w, err)
			return
		}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}

	replayed, failed := make([]string, 0, len(ids)), map[string]string{}
	for _, id := range ids {
		if err := h.replay(ctx, kind, id); err != nil {
			failed[id] = err.Error()
			continue
		}
		replayed = append(replayed, id)
	}
	h.Logger.Info().Str("kind", kind).Int("replayed", len(replayed)).Int("failed", len(failed)).Msg("dlq replay")

	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

// DiscardDLQ drops one dead letter for good.
func (h *AdminHandler) DiscardDLQ(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.ready(w, r.URL.Query().Get("kind"), false)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteDLQ(r.Context(), kind, id); err != nil {
		h.fail(w, err)
		return
	}
	h.Logger.Info().Str("kind", kind).Str("dlq_id", id).Msg("dlq entry discarded")
	w.WriteHeader(http.StatusNoContent)
}

// Stats reports queued, due, in-flight and dead task counts for a kind, plus
// how long the oldest due task has been waiting.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.ready(w, r.URL.Query().Get("kind"), true)
	if !ok {
		return
	}
	ctx := r.Context()
	k := keys{prefix: h.Queue.Prefix}
	now := time.Now()

	var (
		queued, due, inflight *redis.IntCmd
		oldest                *redis.ZSliceCmd
	)
	_, err := h.Queue.R.Pipelined(ctx, func(p redis.Pipeliner) error {
		queued = p.ZCard(ctx, k.queue(kind))
		due = p.ZCount(ctx, k.queue(kind), "-inf", strconv.FormatInt(now.UnixNano(), 10))
		inflight = p.ZCard(ctx, k.processing(kind))
		oldest = p.ZRangeWithScores(ctx, k.queue(kind), 0, 0)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		h.fail(w, err)
		return
	}
	dead, err := h.Store.CountDLQ(ctx, kind)
	if err != nil {
		h.fail(w, err)
		return
	}

	var lag time.Duration
	if z := oldest.Val(); len(z) > 0 {
		lag = max(now.Sub(time.Unix(0, int64(z[0].Score))), 0)
	}
	QueueDepth.WithLabelValues(kind).Set(float64(queued.Val()))

	visibility := h.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"kind":               kind,
		"ready":              queued.Val(),
		"due":                due.Val(),
		"processing":         inflight.Val(),
		"dlq":                dead,
		"oldest_lag_ms":      lag.Milliseconds(),
		"visibility_timeout": visibility.Seconds(),
	})
}

func (h *AdminHandler) replay(ctx context.Context, kind, id string) error {
	entry, err := h.Store.GetDLQ(ctx, kind, id)
	if err != nil {
		return err
	}
	if entry.IdempotencyKey != "" {
		_ = h.Queue.R.Del(ctx, keys{prefix: h.Queue.Prefix}.dedup(kind, entry.IdempotencyKey)).Err()
	}
	if err := h.Queue.Enqueue(ctx, Task{Kind: entry.Kind, Payload: entry.Payload, IdempotencyKey: entry.IdempotencyKey}); err != nil {
		return err
	}
	return h.Store.DeleteDLQ(ctx, kind, id)
}

// ready resolves the kind parameter and checks the handler's dependencies.
// It writes the error response itself and reports whether to continue.
func (h *AdminHandler) ready(w http.ResponseWriter, raw string, needQueue bool) (string, bool) {
	if h == nil || h.Store == nil || (needQueue && h.Queue.R == nil) {
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "queue dependencies unavailable", nil)
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = h.DefaultKind
	}
	kind := sanitizeKind(raw)
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "valid kind is required", nil)
		return "", false
	}
	return kind, true
}

func (h *AdminHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDLQEntryNotFound):
		err = common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrStoreUnavailable):
		err = common.NewAppError("QUEUE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable, err)
	default:
		h.Logger.Error().Err(err).Msg("queue admin")
	}
	common.WriteError(w, err)
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return min(h.PageSize, maxPage)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
