package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// KeyFunc derives the bucket a request is counted against. An empty key
// skips limiting.
type KeyFunc func(*http.Request) string

// ClientAndParam counts attempts per client address and route parameter, so
// one client guessing voucher codes on an order cannot starve other orders.
func ClientAndParam(param string) KeyFunc {
	return func(r *http.Request) string {
		ip := common.ClientIP(r)
		if ip == "" {
			return ""
		}
		return ip + ":" + chi.URLParam(r, param)
	}
}

// Handler rejects requests over the rule with 429 RATE_LIMITED. Limiter
// failures are logged and the request proceeds.
type Handler struct {
	Limiter Limiter
	Rule    Rule
	Key     KeyFunc
	Logger  zerolog.Logger
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), key, h.Rule)
		if err != nil {
			h.Logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Rule.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			headers.Set("Retry-After", strconv.Itoa(int(h.Rule.Window.Seconds())))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, retry later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
