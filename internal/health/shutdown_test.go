package health_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/health"
)

// Once draining starts, readiness fails even though every probe passes, so
// the load balancer stops routing new recalculations here.
func TestReadyFailsWhileDraining(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	h := health.Handler{Probes: []health.Probe{probe("catalog", nil)}}

	health.SetReady(true)
	code, _ := serve(t, h, "/health/ready")
	require.Equal(t, http.StatusOK, code)

	health.SetReady(false)
	code, body := serve(t, h, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "draining", body.Status)

	code, _ = serve(t, h, "/health/live")
	require.Equal(t, http.StatusOK, code, "liveness is unaffected by draining")
}
