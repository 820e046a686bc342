package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newRouter(h Handler) http.Handler {
	r := chi.NewRouter()
	r.With(h.Middleware).Post("/orders/{orderID}/discounts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func post(router http.Handler, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":5000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareLimitsPerClientAndOrder(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := newRouter(Handler{
		Limiter: Limiter{Client: client, Prefix: "codes"},
		Rule:    Rule{Window: time.Minute, Max: 1},
		Key:     ClientAndParam("orderID"),
		Logger:  zerolog.Nop(),
	})

	require.Equal(t, http.StatusCreated, post(router, "/orders/o-1/discounts", "10.0.0.1").Code)

	rec := post(router, "/orders/o-1/discounts", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "RATE_LIMITED", body["error"]["code"])

	require.Equal(t, http.StatusCreated, post(router, "/orders/o-2/discounts", "10.0.0.1").Code)
	require.Equal(t, http.StatusCreated, post(router, "/orders/o-1/discounts", "10.0.0.2").Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	router := newRouter(Handler{
		Limiter: Limiter{Client: client, Prefix: "codes"},
		Rule:    Rule{Window: time.Minute, Max: 1},
		Key:     ClientAndParam("orderID"),
		Logger:  zerolog.Nop(),
	})
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, post(router, "/orders/o-1/discounts", "10.0.0.1").Code)
	}
}
