// Command forecaster implements the Escolta demand forecast engine.
//
// The forecaster runs a scheduled refresh loop that:
//  1. Collects the demand history of one series from an adapter
//  2. Cleans outliers and runs every configured model (Prophet, drift, ARIMA, ...)
//  3. Backtests each model and blends them with regime-aware weights
//  4. Converts the blended forecast into guard crews per step
//  5. Stores the snapshot for clients to consume
//
// It serves an HTTP API on port 8081 (configurable) providing:
//   - GET /forecast/current?series=<name> - Latest snapshot with its crew plan
//   - GET /forecast/series - Names of series with a snapshot
//   - POST /forecast - Ensemble forecast of an ad-hoc series
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// and the same ad-hoc ensemble over gRPC on port 50051.
//
// Usage:
//
//	forecaster \
//	  -series=checkpoint-north \
//	  -metric=escort_requests \
//	  -adapter=prometheus \
//	  -models=prophet,drift,arima \
//	  -demand-per-crew=8 \
//	  -min-crews=2 -max-crews=40
//
// Environment variables:
//
//	SERIES          - Series name (required)
//	METRIC          - Metric name (required)
//	ADAPTER         - Adapter kind: prometheus, victoriametrics, http, file
//	ADAPTER_*       - Adapter settings, e.g. ADAPTER_QUERY, ADAPTER_URL, ADAPTER_PATH
//	MODELS          - Comma separated ensemble members (default: prophet,drift,arima)
//	HORIZON         - Forecast horizon duration (default: 12h)
//	STEP            - Forecast step size (default: 1h)
//	SCHEDULE        - Refresh cron schedule (default: @every 5m)
//	STORAGE         - memory or redis (default: memory)
//	TRACE_EXPORTER  - none, stdout or otlp (default: none)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HatiCode/escolta/cmd/forecaster/config"
	"github.com/HatiCode/escolta/cmd/forecaster/logger"
	"github.com/HatiCode/escolta/cmd/forecaster/metrics"
	"github.com/HatiCode/escolta/cmd/forecaster/models"
	"github.com/HatiCode/escolta/cmd/forecaster/router"
	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/httpx"
	"github.com/HatiCode/escolta/pkg/rpc"
	"github.com/HatiCode/escolta/pkg/telemetry"
	"github.com/HatiCode/escolta/pkg/validation"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting escolta forecaster",
		"version", version,
		"series", cfg.Series,
		"metric", cfg.Metric,
		"adapter", cfg.Adapter,
		"models", cfg.Models,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("forecaster failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg.Tracing.ServiceVersion = version
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	httpClient, err := httpx.NewClient(cfg.TLS, cfg.RemoteTimeout)
	if err != nil {
		return err
	}
	members, err := models.New(cfg, httpClient, logger)
	if err != nil {
		return err
	}

	opts := []ensemble.Option{
		ensemble.WithLogger(logger),
		ensemble.WithBacktestOptions(
			validation.WithSeasonalPeriod(cfg.SeasonalPeriod),
			validation.WithLogger(logger),
		),
	}
	if cfg.Concurrency > 0 {
		opts = append(opts, ensemble.WithConcurrency(cfg.Concurrency))
	}
	if cfg.Clean {
		opts = append(opts, ensemble.WithCleaning(cfg.IQRMultiplier))
	}
	combiner, err := ensemble.New(members, opts...)
	if err != nil {
		return err
	}

	store, health, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.Series, reg)

	f := New(
		cfg.Series,
		cfg.Metric,
		adapter,
		combiner,
		store,
		cfg.Policy(),
		cfg.HorizonSteps(),
		cfg.Step,
		cfg.Window,
		logger,
		m,
	)

	mux := router.SetupRoutes(router.Options{
		Store:      store,
		Combiner:   combiner,
		StaleAfter: cfg.StaleAfter,
		Limiter:    httpx.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		CacheSize:  cfg.CacheSize,
		CacheTTL:   cfg.CacheTTL,
		MaxPoints:  cfg.MaxPoints,
		Metrics:    m,
		Gatherer:   reg,
		Health:     health,
		Logger:     logger,
	})
	handler := httpx.Chain(mux, httpx.LoggingMiddleware(logger), httpx.RecoveryMiddleware(logger))

	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	var serverTLS *tls.Config
	if cfg.TLS.Enabled {
		serverTLS, err = cfg.TLS.Server()
		if err != nil {
			return err
		}
		httpServer.SetTLSConfig(serverTLS)
		logger.Info("TLS enabled", "cert", cfg.TLS.CertFile, "ca", cfg.TLS.CAFile)
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var stopGRPC func()
	if cfg.GRPCListen != "" {
		stop, err := startGRPC(cfg.GRPCListen, serverTLS, &timedCombiner{combiner: combiner, metrics: m, source: metrics.SourceGRPC}, cfg.MaxPoints, logger, serverErr)
		if err != nil {
			return err
		}
		stopGRPC = stop
	}

	go func() {
		if err := f.Run(ctx, cfg.Schedule); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("forecast loop failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			runErr = err
		}
	}

	logger.Info("shutting down")
	cancel()

	if stopGRPC != nil {
		stopGRPC()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return err
	}
	return runErr
}

// startGRPC serves the ensemble over gRPC and returns a graceful stop function.
func startGRPC(addr string, serverTLS *tls.Config, c rpc.Combiner, maxPoints int, logger *slog.Logger, errCh chan<- error) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv, health := rpc.NewServer(rpc.NewService(c, maxPoints, logger), serverTLS, logger)
	go func() {
		logger.Info("gRPC server listening", "addr", addr)
		errCh <- srv.Serve(ln)
	}()

	return func() {
		health.Shutdown()
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}, nil
}

// timedCombiner records combine latency for callers outside the refresh loop.
type timedCombiner struct {
	combiner *ensemble.Combiner
	metrics  *metrics.Metrics
	source   string
}

func (t *timedCombiner) Combine(ctx context.Context, series []float64, horizon int) (ensemble.Result, error) {
	start := time.Now()
	res, err := t.combiner.Combine(ctx, series, horizon)
	t.metrics.RecordCombine(t.source, time.Since(start).Seconds())
	if err != nil {
		t.metrics.RecordError("grpc", "combine_failed")
	}
	return res, err
}
