package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// NewLogger builds the process logger. Unknown levels fall back to info;
// "console" and "text" select the human readable writer, anything else JSON.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "toko-pricing").Logger()
}

// RequestLogger writes one line per request. Order routes carry the order id
// so a recalculation can be followed from the access log into the worker log.
type RequestLogger struct {
	Logger zerolog.Logger
	Skip   []string
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipped(r.URL.Path, l.Skip) {
			next.ServeHTTP(w, r)
			return
		}
		rec := record(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		lvl := zerolog.InfoLevel
		switch {
		case rec.status >= http.StatusInternalServerError:
			lvl = zerolog.ErrorLevel
		case rec.status >= http.StatusBadRequest:
			lvl = zerolog.WarnLevel
		}
		evt := l.Logger.WithLevel(lvl).
			Str("method", r.Method).
			Str("route", RouteOf(r, r.URL.Path)).
			Int("status", rec.status).
			Float64("duration_ms", DurationMillis(time.Since(start))).
			Int64("bytes", rec.bytes).
			Str("request_id", middleware.GetReqID(r.Context()))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if orderID := rc.URLParam("orderID"); orderID != "" {
				evt = evt.Str("order_id", orderID)
			}
			if productID := rc.URLParam("productID"); productID != "" {
				evt = evt.Str("product_id", productID)
			}
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			evt = evt.Str("idempotency_key", key)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("remote_addr", ip)
		}
		evt.Msg("http_request")
	})
}
