package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"PRICING_CURRENCY": "",
		"PORT":             "",
	})
	require.NoError(t, err)
	require.Equal(t, "IDR", cfg.Pricing.Currency)
	require.Equal(t, "ID", cfg.Pricing.Country)
	require.Equal(t, 5*time.Second, cfg.Pricing.RunTimeout)
	require.Equal(t, "configs/catalog.yaml", cfg.Pricing.CatalogFile)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "pricing:queue", cfg.Queue.RedisPrefix)
	require.True(t, cfg.Obs.MetricsEnabled)
	require.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	require.Equal(t, 10, cfg.HTTP.CodeAttemptsMax)
	require.Equal(t, time.Minute, cfg.HTTP.CodeAttemptsWindow)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":                    "redis://localhost:6379/1",
		"PRICING_CURRENCY":             "eur",
		"PRICING_COUNTRY":              "ch",
		"PRICING_RUN_TIMEOUT":          "250ms",
		"QUEUE_CONCURRENCY":            "8",
		"BREAKER_FAILURE_RATIO":        "0.25",
		"PORT":                         ":9090",
		"EVENTS_WEBHOOK_TOPICS":        "pricing.order.failed, pricing.discount.applied,",
		"OBS_ENABLE_PPROF":             "yes",
		"SECURE_PPROF_BASIC_AUTH_USER": " ops ",
	})
	require.NoError(t, err)
	require.Equal(t, "EUR", cfg.Pricing.Currency)
	require.Equal(t, "CH", cfg.Pricing.Country)
	require.Equal(t, 250*time.Millisecond, cfg.Pricing.RunTimeout)
	require.Equal(t, 8, cfg.Queue.Concurrency)
	require.Equal(t, []string{"pricing.order.failed", "pricing.discount.applied"}, cfg.Events.WebhookTopics)
	require.Equal(t, 0.25, cfg.Breaker.FailureRatio)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.True(t, cfg.HTTP.Pprof)
	require.Equal(t, "ops", cfg.HTTP.PprofUser)
}

func TestLoadRequiresRedis(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"REDIS_URL": ""})
	require.ErrorContains(t, err, "REDIS_URL is required")
}

func TestLoadRejectsInvalidCurrency(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"PRICING_CURRENCY": "EURO",
	})
	require.Error(t, err)
}
