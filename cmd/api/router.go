package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/app"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/health"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/ratelimit"
	"github.com/noah-isme/toko-pricing/internal/reprice"
	"github.com/noah-isme/toko-pricing/internal/security"
)

type routerDeps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	catalog *catalog.Catalog
	pricing *app.Pricing
	tracing bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.cfg
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	// probes and scrapes stay out of traces, metrics and access logs
	quiet := []string{"/health/", cfg.Obs.MetricsPath}
	if d.tracing {
		r.Use(obs.Tracing(quiet...))
	}
	if cfg.Obs.MetricsEnabled {
		metrics := obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.LatencyBuckets), nil)
		r.Use(obs.HTTPObs{Metrics: metrics, Skip: quiet}.Middleware)
		r.Handle(cfg.Obs.MetricsPath, promhttp.Handler())
	}
	r.Use(
		obs.RequestLogger{Logger: d.logger, Skip: quiet}.Middleware,
		security.Headers{Enable: cfg.HTTP.SecurityHeaders, HSTSMaxAge: cfg.HTTP.HSTSMaxAge}.Middleware,
		security.BodyLimit{Max: cfg.HTTP.MaxBodyBytes}.Middleware,
	)

	if cfg.HTTP.Pprof {
		profiler := middleware.Profiler()
		if cfg.HTTP.PprofUser != "" {
			profiler = middleware.BasicAuth("pprof", map[string]string{cfg.HTTP.PprofUser: cfg.HTTP.PprofPass})(profiler)
		}
		r.Mount("/debug", profiler)
	}

	health.Handler{
		Timeout: 300 * time.Millisecond,
		Probes: []health.Probe{
			health.RedisProbe(d.redis),
			{Name: "catalog", Check: func(context.Context) error {
				if len(d.catalog.Products()) == 0 {
					return errors.New("catalog has no products")
				}
				return nil
			}},
		},
	}.Routes(r)

	tasks := &queue.Enqueuer{R: d.redis, Prefix: cfg.Queue.RedisPrefix, DedupTTL: cfg.IdemTTL, MaxAttempts: cfg.Queue.MaxAttempts}
	codeAttempts := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: d.redis, Prefix: "pricing:ratelimit:codes"},
		Rule:    ratelimit.Rule{Window: cfg.HTTP.CodeAttemptsWindow, Max: cfg.HTTP.CodeAttemptsMax},
		Key:     ratelimit.ClientAndParam("orderID"),
		Logger:  d.logger,
	}
	pricingAPI := &reprice.Handler{
		Svc:          d.pricing.Service,
		Queue:        tasks,
		Idem:         &common.Idem{R: d.redis, TTL: cfg.IdemTTL},
		CodeAttempts: codeAttempts.Middleware,
	}
	queueAdmin := &queue.AdminHandler{
		Store:             queue.RedisStore{R: d.redis, Prefix: cfg.Queue.RedisPrefix},
		Queue:             *tasks,
		DefaultKind:       reprice.KindOrderRecalculate,
		Logger:            d.logger.With().Str("component", "queue-admin").Logger(),
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	}

	r.Route("/api/v1", func(v chi.Router) {
		catalog.NewHandler(d.catalog).Routes(v)
		pricingAPI.Routes(v)
		queueAdmin.Routes(v)
	})
	return r
}
