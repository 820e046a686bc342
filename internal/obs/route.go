package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteOf returns the chi pattern matched for r. Middleware mounted on the
// root router only sees it after the inner handler returned; unmatched
// requests report fallback so 404 probes don't explode label cardinality.
func RouteOf(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
