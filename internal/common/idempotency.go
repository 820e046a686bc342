package common

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem claims Idempotency-Key headers in Redis for write endpoints. A key is
// scoped to method and path, so a client may reuse one key across orders.
//
// A repeated key with the same body is a replay (409). The same key with a
// different body is a client bug (422). Keys whose first request failed with
// a 5xx are released so the client can retry.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

const idemPrefix = "pricing:idem:"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unreadable request body", nil)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := r.Context()
		key := idemPrefix + Fingerprint(r.Method, r.URL.Path, header)
		digest := Fingerprint(string(body))
		claimed, err := i.R.SetNX(ctx, key, digest, i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency store unavailable", nil)
			return
		}
		if !claimed {
			stored, _ := i.R.Get(ctx, key).Result()
			if stored != "" && stored != digest {
				JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used with a different request body", nil)
				return
			}
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if sw.status >= http.StatusInternalServerError {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(sw, r)
	})
}
