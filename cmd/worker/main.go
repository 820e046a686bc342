package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/app"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/queue"
	"github.com/noah-isme/toko-pricing/internal/reprice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
	logger.Info().Msg("worker shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	_, stopTracing := app.StartTracing(ctx, cfg, cfg.Obs.ServiceName+"-worker", logger)
	defer stopTracing()

	redisClient, err := app.OpenRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	cat, err := catalog.Load(cfg.Pricing.CatalogFile)
	if err != nil {
		return err
	}
	stack, err := app.NewPricing(app.Dependencies{Redis: redisClient, Catalog: cat, Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	w := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.Queue.RedisPrefix,
		Kind:              reprice.KindOrderRecalculate,
		Concurrency:       cfg.Queue.Concurrency,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		SoftDeadline:      cfg.Pricing.RunTimeout,
		RetryBase:         cfg.Queue.BackoffBase,
		RetryJitter:       cfg.Queue.BackoffJitter,
		Store:             queue.RedisStore{R: redisClient, Prefix: cfg.Queue.RedisPrefix},
		Logger:            &logger,
		Handler:           stack.Service.HandleRecalculate,
	}
	logger.Info().Str("kind", w.Kind).Int("concurrency", w.Concurrency).Msg("worker starting")
	return w.Run(ctx)
}
