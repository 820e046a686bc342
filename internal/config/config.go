package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv   string `validate:"required"`
	Port     string `validate:"required"`
	RedisURL string `validate:"required"`

	Pricing PricingConfig
	Lock    LockConfig
	Queue   QueueConfig
	Breaker BreakerConfig
	HTTP    HTTPConfig
	Events  EventsConfig
	Obs     ObsConfig
	IdemTTL time.Duration `validate:"gt=0"`
}

// HTTPConfig controls request guards on the API.
type HTTPConfig struct {
	MaxBodyBytes       int64 `validate:"gte=0"`
	SecurityHeaders    bool
	HSTSMaxAge         int           `validate:"gte=0"`
	CodeAttemptsMax    int           `validate:"gte=0"`
	CodeAttemptsWindow time.Duration `validate:"gte=0"`
	// Pprof mounts /debug/pprof, behind basic auth when PprofUser is set.
	Pprof     bool
	PprofUser string
	PprofPass string
}

// PricingConfig controls the pricing engine defaults and its catalog.
type PricingConfig struct {
	Currency    string        `validate:"required,len=3,uppercase"`
	Country     string        `validate:"required,len=2,uppercase"`
	CatalogFile string        `validate:"required"`
	RunTimeout  time.Duration `validate:"gt=0"`
}

// LockConfig controls the per-order recalculation lock.
type LockConfig struct {
	TTL          time.Duration `validate:"gt=0"`
	RetryBackoff time.Duration `validate:"gt=0"`
}

// QueueConfig controls the async recalculation queue.
type QueueConfig struct {
	RedisPrefix       string `validate:"required"`
	Concurrency       int    `validate:"gte=1"`
	MaxAttempts       int    `validate:"gte=1"`
	VisibilityTimeout time.Duration
	BackoffBase       time.Duration
	BackoffJitter     float64 `validate:"gte=0,lte=1"`
}

// BreakerConfig controls breakers around adapters that call remote collaborators.
type BreakerConfig struct {
	MinRequests  int     `validate:"gte=1"`
	FailureRatio float64 `validate:"gt=0,lte=1"`
	OpenFor      time.Duration
}

// EventsConfig controls the optional webhook that mirrors pricing events.
type EventsConfig struct {
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookTopics  []string
}

// ObsConfig controls logging, metrics and tracing.
type ObsConfig struct {
	ServiceName      string
	LogFormat        string `validate:"oneof=json console text"`
	LogLevel         string
	MetricsEnabled   bool
	MetricsPath      string
	MetricsNamespace string
	LatencyBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	TracingEndpoint  string
	SamplingRatio    float64 `validate:"gte=0,lte=1"`
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:   valueOrDefault(k.String("APP_ENV"), "development"),
		Port:     valueOrDefault(k.String("PORT"), "8080"),
		RedisURL: strings.TrimSpace(k.String("REDIS_URL")),
		Pricing: PricingConfig{
			Currency:    strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "IDR")),
			Country:     strings.ToUpper(valueOrDefault(k.String("PRICING_COUNTRY"), "ID")),
			CatalogFile: valueOrDefault(k.String("PRICING_CATALOG_FILE"), "configs/catalog.yaml"),
			RunTimeout:  parseDuration(k.String("PRICING_RUN_TIMEOUT"), "5s"),
		},
		Lock: LockConfig{
			TTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
			RetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		},
		Queue: QueueConfig{
			RedisPrefix:       valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "pricing:queue"),
			Concurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 4),
			MaxAttempts:       parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 5),
			VisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),
			BackoffBase:       parseDuration(k.String("QUEUE_BACKOFF_BASE"), "500ms"),
			BackoffJitter:     parseFloat(k.String("QUEUE_BACKOFF_JITTER"), 0.2),
		},
		Breaker: BreakerConfig{
			MinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 5),
			FailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
			OpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:       int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
			SecurityHeaders:    parseBoolDefault(k.String("HTTP_SECURITY_HEADERS"), true),
			HSTSMaxAge:         parseInt(k.String("HTTP_HSTS_MAX_AGE"), 31536000),
			CodeAttemptsMax:    parseInt(k.String("DISCOUNT_CODE_ATTEMPTS_MAX"), 10),
			CodeAttemptsWindow: parseDuration(k.String("DISCOUNT_CODE_ATTEMPTS_WINDOW"), "1m"),
			Pprof:              parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
		Events: EventsConfig{
			WebhookURL:     strings.TrimSpace(k.String("EVENTS_WEBHOOK_URL")),
			WebhookSecret:  k.String("EVENTS_WEBHOOK_SECRET"),
			WebhookTimeout: parseDuration(k.String("EVENTS_WEBHOOK_TIMEOUT"), "3s"),
			WebhookTopics:  parseCSV(k.String("EVENTS_WEBHOOK_TOPICS")),
		},
		Obs: ObsConfig{
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "toko-pricing"),
			LogFormat:        strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
			MetricsPath:      valueOrDefault(k.String("OBS_METRICS_PATH"), "/metrics"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "pricing"),
			LatencyBuckets:   k.String("OBS_LATENCY_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_TRACING_ENABLED")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			TracingEndpoint:  k.String("OBS_TRACING_ENDPOINT"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLER_RATIO"), 1),
		},
		IdemTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
