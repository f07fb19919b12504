// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - GET /forecast/current?series=<name> - Latest forecast snapshot with its crew plan
//   - GET /forecast/series - Names of all series with a snapshot
//   - POST /forecast - Ensemble forecast of an ad-hoc series (rate limited, cached)
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Snapshots older than the stale threshold carry an X-Escolta-Stale header.
package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/HatiCode/escolta/cmd/forecaster/metrics"
	"github.com/HatiCode/escolta/pkg/client"
	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/httpx"
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/storage"
	"github.com/HatiCode/escolta/pkg/telemetry"
)

// StaleHeader marks snapshots older than the configured threshold.
const StaleHeader = "X-Escolta-Stale"

const (
	defaultMaxPoints  = 10000
	defaultMaxHorizon = 1000
	maxBodyBytes      = 4 << 20
	combineTimeout    = 30 * time.Second
)

// Combiner produces ensemble forecasts for POST /forecast.
type Combiner interface {
	Combine(ctx context.Context, series []float64, horizon int) (ensemble.Result, error)
}

// Options configures the routes. Store is required; a nil Combiner disables
// POST /forecast.
type Options struct {
	Store      storage.Store
	Combiner   Combiner
	StaleAfter time.Duration

	// Limiter throttles POST /forecast. Nil disables rate limiting.
	Limiter *rate.Limiter

	// CacheSize bounds the ad-hoc forecast cache. Zero disables caching.
	CacheSize int
	CacheTTL  time.Duration

	MaxPoints  int
	MaxHorizon int

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   func() error
	Logger   *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(opts Options) *http.ServeMux {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = defaultMaxPoints
	}
	if opts.MaxHorizon <= 0 {
		opts.MaxHorizon = defaultMaxHorizon
	}

	mux := http.NewServeMux()

	if opts.Health != nil {
		mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(opts.Health))
	} else {
		mux.Handle("GET /healthz", httpx.HealthHandler())
	}

	mux.HandleFunc("GET /forecast/current", handleGetSnapshot(opts.Store, opts.StaleAfter, opts.Metrics, opts.Logger))
	mux.HandleFunc("GET /forecast/series", handleListSeries(opts.Store, opts.Logger))

	if opts.Combiner != nil {
		h := newForecastHandler(opts)
		mux.Handle("POST /forecast", httpx.Chain(h, httpx.RateLimitMiddleware(opts.Limiter)))
	}

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

// handleGetSnapshot returns a handler for GET /forecast/current?series=<name>.
func handleGetSnapshot(store storage.Store, staleAfter time.Duration, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series := r.URL.Query().Get("series")
		if series == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "series parameter required")
			return
		}
		if err := storage.ValidateSeries(series); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid series name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, series)
		if err != nil {
			logger.Error("failed to get snapshot", "series", series, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for series %q", series))
			return
		}

		age := snapshot.Age(time.Now())
		if m != nil {
			m.SetForecastAge(age.Seconds())
		}
		if staleAfter > 0 && age > staleAfter {
			w.Header().Set(StaleHeader, "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleListSeries(store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		names, err := store.Series(ctx)
		if err != nil {
			logger.Error("failed to list series", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if names == nil {
			names = []string{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, map[string][]string{"series": names}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

type forecastHandler struct {
	combiner   Combiner
	cache      *expirable.LRU[string, ensemble.Result]
	maxPoints  int
	maxHorizon int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func newForecastHandler(opts Options) *forecastHandler {
	h := &forecastHandler{
		combiner:   opts.Combiner,
		maxPoints:  opts.MaxPoints,
		maxHorizon: opts.MaxHorizon,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if opts.CacheSize > 0 {
		h.cache = expirable.NewLRU[string, ensemble.Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return h
}

func (h *forecastHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req client.ForecastRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Series) == 0 {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "series must not be empty")
		return
	}
	if len(req.Series) > h.maxPoints {
		httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("series has %d points, limit is %d", len(req.Series), h.maxPoints))
		return
	}
	if req.Horizon > h.maxHorizon {
		httpx.WriteErrorMessage(w, http.StatusBadRequest,
			fmt.Sprintf("horizon %d exceeds limit %d", req.Horizon, h.maxHorizon))
		return
	}

	key := cacheKey(req)
	if h.cache != nil {
		if res, ok := h.cache.Get(key); ok {
			h.recordCache(true)
			w.Header().Set("X-Cache", "HIT")
			h.write(w, res)
			return
		}
		h.recordCache(false)
	}

	ctx, cancel := context.WithTimeout(r.Context(), combineTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "ensemble.combine",
		attribute.Int("series.points", len(req.Series)),
		attribute.Int("forecast.horizon", req.Horizon),
	)

	start := time.Now()
	res, err := h.combiner.Combine(ctx, req.Series, req.Horizon)
	if h.metrics != nil {
		h.metrics.RecordCombine(metrics.SourceHTTP, time.Since(start).Seconds())
	}
	if err == nil {
		span.SetAttributes(
			attribute.String("ensemble.regime", string(res.Regime.Regime)),
			attribute.Int("ensemble.members", len(res.Weights)),
		)
	}
	telemetry.EndSpan(span, err)

	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("ad-hoc forecast failed", "points", len(req.Series), "horizon", req.Horizon, "error", err)
			if h.metrics != nil {
				h.metrics.RecordError("ensemble", "combine_failed")
			}
		}
		httpx.WriteError(w, status, err)
		return
	}

	if h.cache != nil {
		h.cache.Add(key, res)
		w.Header().Set("X-Cache", "MISS")
	}
	h.write(w, res)
}

func (h *forecastHandler) write(w http.ResponseWriter, res ensemble.Result) {
	if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *forecastHandler) recordCache(hit bool) {
	if h.metrics != nil {
		h.metrics.RecordCache(hit)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.Is(err, ensemble.ErrNoViableForecaster):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func cacheKey(req client.ForecastRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
