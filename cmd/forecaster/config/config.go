// Package config provides configuration parsing and management for the forecaster.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for the forecaster including:
//   - Series identification (series name, metric name)
//   - Forecast parameters (horizon, step, window, refresh schedule)
//   - Ensemble members and their orders
//   - Crew planning policy (demand per crew, headroom, min/max crews)
//   - Adapter settings (kind plus ADAPTER_* variables)
//   - Storage, TLS, rate limiting, caching and tracing
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HatiCode/escolta/pkg/capacity"
	"github.com/HatiCode/escolta/pkg/storage"
	"github.com/HatiCode/escolta/pkg/telemetry"
	"github.com/HatiCode/escolta/pkg/tls"
)

// Ensemble member kinds accepted in -models.
const (
	ModelProphet = "prophet"
	ModelDrift   = "drift"
	ModelARIMA   = "arima"
	ModelSARIMA  = "sarima"
	ModelRemote  = "remote"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen        string
	GRPCListen    string
	LogFormat     string
	LogLevel      string
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	TLS           tls.Config

	Series        string
	Metric        string
	Adapter       string
	AdapterConfig map[string]string
	Horizon       time.Duration
	Step          time.Duration
	Window        time.Duration
	Schedule      string

	Models         []string
	SeasonalPeriod int
	Optimize       bool
	ARIMA_P        int
	ARIMA_D        int
	ARIMA_Q        int
	SARIMA_P       int
	SARIMA_D       int
	SARIMA_Q       int
	SARIMA_SP      int
	SARIMA_SD      int
	SARIMA_SQ      int
	SARIMA_S       int
	RemoteURL      string
	RemoteTimeout  time.Duration
	Clean          bool
	IQRMultiplier  float64
	Concurrency    int

	DemandPerCrew         float64
	Headroom              float64
	UseUpperBound         bool
	MinCrews              int
	MaxCrews              int
	UpMaxFactorPerStep    float64
	DownMaxPercentPerStep int
	PrewarmWindowSteps    int
	Rounding              string

	RateLimit  float64
	RateBurst  int
	CacheSize  int
	CacheTTL   time.Duration
	MaxPoints  int
	StaleAfter time.Duration

	Tracing telemetry.Config
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
// Call Validate before using the result.
func ParseFlags() *Config {
	cfg := &Config{}
	var models string

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":50051"), "gRPC listen address (empty disables gRPC)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis snapshot TTL")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP and gRPC servers")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.StringVar(&cfg.Series, "series", getEnv("SERIES", ""), "Demand series name (required)")
	flag.StringVar(&cfg.Metric, "metric", getEnv("METRIC", ""), "Metric name (required)")
	flag.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", ""), "Adapter type: prometheus, victoriametrics, http, or file")
	flag.DurationVar(&cfg.Horizon, "horizon", getEnvDuration("HORIZON", 12*time.Hour), "Forecast horizon")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Hour), "Forecast step size")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 14*24*time.Hour), "Historical window")
	flag.StringVar(&cfg.Schedule, "schedule", getEnv("SCHEDULE", "@every 5m"), "Refresh schedule (cron expression or @every)")

	flag.StringVar(&models, "models", getEnv("MODELS", "prophet,drift,arima"), "Comma-separated ensemble members: prophet, drift, arima, sarima, remote")
	flag.IntVar(&cfg.SeasonalPeriod, "seasonal-period", getEnvInt("SEASONAL_PERIOD", 24), "Seasonal period in steps")
	flag.BoolVar(&cfg.Optimize, "optimize", getEnvBool("OPTIMIZE", false), "Grid-search Prophet parameters on each refresh")
	flag.IntVar(&cfg.ARIMA_P, "arima-p", getEnvInt("ARIMA_P", 0), "ARIMA AR order (0=auto, default 1)")
	flag.IntVar(&cfg.ARIMA_D, "arima-d", getEnvInt("ARIMA_D", 0), "ARIMA differencing order (0=auto, default 1)")
	flag.IntVar(&cfg.ARIMA_Q, "arima-q", getEnvInt("ARIMA_Q", 0), "ARIMA MA order (0=auto, default 1)")
	flag.IntVar(&cfg.SARIMA_P, "sarima-p", getEnvInt("SARIMA_P", 0), "SARIMA non-seasonal AR order (0=auto, default 1)")
	flag.IntVar(&cfg.SARIMA_D, "sarima-d", getEnvInt("SARIMA_D", 0), "SARIMA non-seasonal differencing order (0=auto, default 1)")
	flag.IntVar(&cfg.SARIMA_Q, "sarima-q", getEnvInt("SARIMA_Q", 0), "SARIMA non-seasonal MA order (0=auto, default 1)")
	flag.IntVar(&cfg.SARIMA_SP, "sarima-sp", getEnvInt("SARIMA_SP", 1), "SARIMA seasonal AR order")
	flag.IntVar(&cfg.SARIMA_SD, "sarima-sd", getEnvInt("SARIMA_SD", 1), "SARIMA seasonal differencing order")
	flag.IntVar(&cfg.SARIMA_SQ, "sarima-sq", getEnvInt("SARIMA_SQ", 1), "SARIMA seasonal MA order")
	flag.IntVar(&cfg.SARIMA_S, "sarima-s", getEnvInt("SARIMA_S", 24), "SARIMA seasonal period (e.g., 24 for hourly with daily pattern)")
	flag.StringVar(&cfg.RemoteURL, "remote-url", getEnv("REMOTE_URL", ""), "Remote forecaster URL (required when models include remote)")
	flag.DurationVar(&cfg.RemoteTimeout, "remote-timeout", getEnvDuration("REMOTE_TIMEOUT", 30*time.Second), "Remote forecaster timeout")
	flag.BoolVar(&cfg.Clean, "clean", getEnvBool("CLEAN", true), "Replace IQR outliers with the median before forecasting")
	flag.Float64Var(&cfg.IQRMultiplier, "iqr-multiplier", getEnvFloat("IQR_MULTIPLIER", 2.5), "IQR fence multiplier for outlier cleaning")
	flag.IntVar(&cfg.Concurrency, "concurrency", getEnvInt("CONCURRENCY", 0), "Members evaluated in parallel (0=GOMAXPROCS)")

	flag.Float64Var(&cfg.DemandPerCrew, "demand-per-crew", getEnvFloat("DEMAND_PER_CREW", 8.0), "Demand one crew covers per step")
	flag.Float64Var(&cfg.Headroom, "headroom", getEnvFloat("HEADROOM", 1.2), "Headroom multiplier")
	flag.BoolVar(&cfg.UseUpperBound, "use-upper-bound", getEnvBool("USE_UPPER_BOUND", false), "Plan crews against the upper prediction bound")
	flag.IntVar(&cfg.MinCrews, "min", getEnvInt("MIN_CREWS", 1), "Minimum crews")
	flag.IntVar(&cfg.MaxCrews, "max", getEnvInt("MAX_CREWS", 50), "Maximum crews")
	flag.Float64Var(&cfg.UpMaxFactorPerStep, "up-max-factor", getEnvFloat("UP_MAX_FACTOR", 2.0), "Max crew growth factor per step")
	flag.IntVar(&cfg.DownMaxPercentPerStep, "down-max-percent", getEnvInt("DOWN_MAX_PERCENT", 50), "Max crew reduction percent per step")
	flag.IntVar(&cfg.PrewarmWindowSteps, "prewarm-steps", getEnvInt("PREWARM_STEPS", 0), "Plan each step for the peak over the next N steps")
	flag.StringVar(&cfg.Rounding, "rounding", getEnv("ROUNDING", capacity.RoundCeil), "Crew rounding: ceil, round, or floor")

	flag.Float64Var(&cfg.RateLimit, "rate-limit", getEnvFloat("RATE_LIMIT", 20), "POST /forecast requests per second (0 disables)")
	flag.IntVar(&cfg.RateBurst, "rate-burst", getEnvInt("RATE_BURST", 40), "POST /forecast burst size")
	flag.IntVar(&cfg.CacheSize, "cache-size", getEnvInt("CACHE_SIZE", 256), "Cached ad-hoc forecasts (0 disables)")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", 10*time.Minute), "Ad-hoc forecast cache TTL")
	flag.IntVar(&cfg.MaxPoints, "max-points", getEnvInt("MAX_POINTS", 10000), "Largest series accepted by ad-hoc forecasts")
	flag.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", 0), "Snapshot age marked stale (0=twice the schedule interval)")

	flag.StringVar(&cfg.Tracing.Exporter, "trace-exporter", getEnv("TRACE_EXPORTER", telemetry.ExporterNone), "Trace exporter: none, stdout, or otlp")
	flag.StringVar(&cfg.Tracing.Endpoint, "trace-endpoint", getEnv("TRACE_ENDPOINT", "localhost:4317"), "OTLP gRPC collector endpoint")
	flag.BoolVar(&cfg.Tracing.Insecure, "trace-insecure", getEnvBool("TRACE_INSECURE", true), "Disable TLS towards the collector")
	flag.Float64Var(&cfg.Tracing.SamplingRate, "trace-sample-rate", getEnvFloat("TRACE_SAMPLE_RATE", 1.0), "Fraction of traces sampled")

	flag.Parse()

	cfg.Models = splitList(models)
	cfg.AdapterConfig = parseAdapterConfig()
	cfg.Tracing.ServiceName = "escolta-forecaster"

	return cfg
}

// Validate checks required fields and normalizes defaults.
func (c *Config) Validate() error {
	if err := storage.ValidateSeries(c.Series); err != nil {
		return fmt.Errorf("series: %w", err)
	}
	if c.Metric == "" {
		return errors.New("metric is required")
	}
	if c.Adapter == "" {
		return errors.New("adapter is required")
	}

	if c.Horizon <= 0 {
		return errors.New("horizon must be > 0")
	}
	if c.Step <= 0 {
		return errors.New("step must be > 0")
	}
	if c.Step > c.Horizon {
		return fmt.Errorf("step (%v) cannot exceed horizon (%v)", c.Step, c.Horizon)
	}
	if c.Window < c.Step {
		return fmt.Errorf("window (%v) must cover at least one step (%v)", c.Window, c.Step)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model is required")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		switch m {
		case ModelProphet, ModelDrift, ModelARIMA, ModelSARIMA, ModelRemote:
		default:
			return fmt.Errorf("invalid model %q (must be prophet, drift, arima, sarima, or remote)", m)
		}
		if seen[m] {
			return fmt.Errorf("model %q listed twice", m)
		}
		seen[m] = true
	}
	if seen[ModelRemote] && c.RemoteURL == "" {
		return errors.New("remote-url is required when models include remote")
	}

	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.MaxPoints <= 0 {
		c.MaxPoints = 10000
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("TLS: %w", err)
	}
	return nil
}

// HorizonSteps is the number of forecast steps covering Horizon.
func (c *Config) HorizonSteps() int {
	return max(1, int(c.Horizon/c.Step))
}

// StepSeconds is Step in whole seconds.
func (c *Config) StepSeconds() int {
	return int(c.Step.Seconds())
}

// Policy builds the crew planning policy.
func (c *Config) Policy() capacity.Policy {
	return capacity.Policy{
		DemandPerCrew:         c.DemandPerCrew,
		Headroom:              c.Headroom,
		UseUpperBound:         c.UseUpperBound,
		MinCrews:              c.MinCrews,
		MaxCrews:              c.MaxCrews,
		UpMaxFactorPerStep:    c.UpMaxFactorPerStep,
		DownMaxPercentPerStep: c.DownMaxPercentPerStep,
		PrewarmWindowSteps:    c.PrewarmWindowSteps,
		RoundingMode:          c.Rounding,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAdapterConfig parses ADAPTER_* environment variables into a generic configuration map.
// Environment variable names are converted to camelCase for the map keys
// (ADAPTER_VALUE_PATH → valuePath).
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, "ADAPTER_") || len(key) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(key[len("ADAPTER_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]) + p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
