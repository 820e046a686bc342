package queue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/queue"
)

type adminFixture struct {
	handler *queue.AdminHandler
	store   queue.RedisStore
	router  chi.Router
}

func newAdmin(t *testing.T) adminFixture {
	t.Helper()
	client := newRedis(t)
	store := queue.RedisStore{R: client, Prefix: "adm"}
	h := &queue.AdminHandler{
		Store:             store,
		Queue:             queue.Enqueuer{R: client, Prefix: "adm", DedupTTL: time.Minute, MaxAttempts: 5},
		DefaultKind:       recalc,
		PageSize:          10,
		VisibilityTimeout: time.Minute,
	}
	r := chi.NewRouter()
	h.Routes(r)
	return adminFixture{handler: h, store: store, router: r}
}

func (f adminFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f adminFixture) dead(t *testing.T, key string) string {
	t.Helper()
	id, err := f.store.InsertDLQ(context.Background(), queue.DLQEntry{
		Kind:           recalc,
		IdempotencyKey: key,
		Payload:        []byte(`{"orderId":"` + key + `"}`),
		Attempts:       5,
		LastError:      "calculation failed",
	})
	require.NoError(t, err)
	return id
}

func TestReplayByIDRequeuesWithFreshKey(t *testing.T) {
	f := newAdmin(t)
	ctx := context.Background()
	id := f.dead(t, "o-1")
	// a stale dedup marker would swallow the replay
	require.NoError(t, f.handler.Queue.R.Set(ctx, "adm:dedup:"+recalc+":o-1", "1", time.Minute).Err())

	rec := f.do(t, http.MethodPost, "/admin/queue/dlq/replay", `{"ids":["`+id+`"," `+id+` "]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Replayed []string          `json:"replayed"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{id}, resp.Replayed)
	require.Empty(t, resp.Failed)

	depth, err := f.handler.Queue.Depth(ctx, recalc)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
	_, err = f.store.GetDLQ(ctx, recalc, id)
	require.ErrorIs(t, err, queue.ErrDLQEntryNotFound)
}

func TestReplayWithoutIDsTakesNewest(t *testing.T) {
	f := newAdmin(t)
	for _, key := range []string{"o-1", "o-2", "o-3"} {
		f.dead(t, key)
	}

	rec := f.do(t, http.MethodPost, "/admin/queue/dlq/replay", `{"limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	n, err := f.store.CountDLQ(context.Background(), recalc)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestReplayReportsUnknownIDs(t *testing.T) {
	f := newAdmin(t)
	rec := f.do(t, http.MethodPost, "/admin/queue/dlq/replay", `{"ids":["nope"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"failed":{"nope"`)

	rec = f.do(t, http.MethodPost, "/admin/queue/dlq/replay", `{"ids":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscardDLQ(t *testing.T) {
	f := newAdmin(t)
	id := f.dead(t, "o-4")

	rec := f.do(t, http.MethodDelete, "/admin/queue/dlq/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/queue/dlq/"+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestListAndStats(t *testing.T) {
	f := newAdmin(t)
	ctx := context.Background()
	f.dead(t, "o-5")
	require.NoError(t, f.handler.Queue.Enqueue(ctx, queue.Task{Kind: recalc}))
	require.NoError(t, f.handler.Queue.Enqueue(ctx, queue.Task{Kind: recalc, Delay: time.Hour}))

	rec := f.do(t, http.MethodGet, "/admin/queue/dlq?limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []queue.DLQEntry `json:"data"`
		Total int64            `json:"total"`
		Kind  string           `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, int64(1), list.Total)
	require.Equal(t, recalc, list.Kind)

	rec = f.do(t, http.MethodGet, "/admin/queue/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Ready      int64 `json:"ready"`
		Due        int64 `json:"due"`
		Processing int64 `json:"processing"`
		DLQ        int64 `json:"dlq"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(2), stats.Ready)
	require.Equal(t, int64(1), stats.Due, "the delayed task is not due yet")
	require.Zero(t, stats.Processing)
	require.Equal(t, int64(1), stats.DLQ)

	rec = f.do(t, http.MethodGet, "/admin/queue/stats?kind=Bad%20Kind", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminWithoutStore(t *testing.T) {
	r := chi.NewRouter()
	(&queue.AdminHandler{}).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queue/dlq", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
