// Package main implements the forecast refresh loop.
//
// This file contains the Forecaster type which orchestrates one refresh:
//
//	collect → fill gaps → combine (ensemble) → plan crews → store snapshot
//
// The Forecaster runs continuously via Run(), executing Tick() whenever the
// cron schedule fires. Each tick publishes a new snapshot that clients read
// through GET /forecast/current.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/HatiCode/escolta/cmd/forecaster/metrics"
	"github.com/HatiCode/escolta/pkg/adapters"
	"github.com/HatiCode/escolta/pkg/capacity"
	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/storage"
	"github.com/HatiCode/escolta/pkg/telemetry"
)

// Combiner blends member forecasts. *ensemble.Combiner satisfies it.
type Combiner interface {
	Combine(ctx context.Context, series []float64, horizon int) (ensemble.Result, error)
}

// Forecaster orchestrates the refresh loop: collect → combine → plan → store.
type Forecaster struct {
	series       string
	metric       string
	adapter      adapters.Adapter
	combiner     Combiner
	store        storage.Store
	policy       capacity.Policy
	horizon      int
	step         time.Duration
	window       time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	currentCrews int
}

// New creates a new Forecaster. horizon is the number of steps forecast on
// each refresh.
func New(
	series, metric string,
	adapter adapters.Adapter,
	combiner Combiner,
	store storage.Store,
	policy capacity.Policy,
	horizon int,
	step, window time.Duration,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}

	return &Forecaster{
		series:       series,
		metric:       metric,
		adapter:      adapter,
		combiner:     combiner,
		store:        store,
		policy:       policy,
		horizon:      horizon,
		step:         step,
		window:       window,
		logger:       logger.With("series", series),
		metrics:      metrics,
		currentCrews: policy.MinCrews,
	}
}

// Run refreshes once immediately and then on every activation of schedule
// (a standard cron expression or descriptor such as "@every 5m").
// Blocks until context is canceled.
func (f *Forecaster) Run(ctx context.Context, schedule string) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	f.logger.Info("starting forecast loop", "schedule", schedule, "window", f.window, "horizon_steps", f.horizon)

	if err := f.Tick(ctx); err != nil {
		f.logger.Error("initial forecast tick failed", "error", err)
	}

	for {
		wait := time.Until(sched.Next(time.Now()))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			f.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-timer.C:
			if err := f.Tick(ctx); err != nil {
				f.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one forecast cycle.
// Exported for testing purposes.
func (f *Forecaster) Tick(ctx context.Context) (err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "forecaster.tick", attribute.String("series", f.series))
	defer func() { telemetry.EndSpan(span, err) }()

	df, collectDuration, err := f.collect(ctx)
	if err != nil {
		f.recordError("adapter", "collect_failed")
		return fmt.Errorf("collect: %w", err)
	}

	history := df.FillGaps(int(f.step.Seconds())).Values()
	if len(history) == 0 {
		f.recordError("adapter", "empty_series")
		return errors.New("collect: adapter returned no points")
	}

	res, combineDuration, err := f.combine(ctx, history)
	if err != nil {
		f.recordError("ensemble", "combine_failed")
		return fmt.Errorf("combine: %w", err)
	}

	crews, capacityDuration := f.planCrews(res)

	if err := f.storeSnapshot(ctx, res, crews); err != nil {
		f.recordError("store", "put_failed")
		return fmt.Errorf("store: %w", err)
	}

	if f.metrics != nil {
		f.metrics.SetForecastAge(0)
		f.metrics.SetPlannedCrews(f.currentCrews)
		f.metrics.SetPredictedDemand(res.Forecast[0])
		f.metrics.SetEnsemble(res.Confidence, res.Weights, string(res.Regime.Regime))
	}

	f.logger.Info("forecast tick complete",
		"points", len(history),
		"regime", res.Regime.Regime,
		"confidence", res.Confidence,
		"members", len(res.Weights),
		"current_crews", f.currentCrews,
		"collect_ms", collectDuration.Milliseconds(),
		"combine_ms", combineDuration.Milliseconds(),
		"capacity_ms", capacityDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// collect retrieves the demand series from the adapter.
func (f *Forecaster) collect(ctx context.Context) (*adapters.DataFrame, time.Duration, error) {
	start := time.Now()

	df, err := f.adapter.Collect(ctx, int(f.window.Seconds()))
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCollect(duration.Seconds())
	}

	f.logger.Debug("collected series",
		"adapter", f.adapter.Name(),
		"points", df.Len(),
		"window_seconds", int(f.window.Seconds()),
		"duration_ms", duration.Milliseconds(),
	)

	return df, duration, nil
}

// combine runs the ensemble on history.
func (f *Forecaster) combine(ctx context.Context, history []float64) (ensemble.Result, time.Duration, error) {
	start := time.Now()

	res, err := f.combiner.Combine(ctx, history, f.horizon)
	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCombine(metrics.SourceRefresh, duration.Seconds())
	}
	if err != nil {
		return ensemble.Result{}, duration, err
	}

	f.logger.Debug("combined forecast",
		"weights", res.Weights,
		"cleaned", res.Cleaned,
		"data_quality", res.DataQuality,
		"duration_ms", duration.Milliseconds(),
	)

	return res, duration, nil
}

// planCrews converts the combined forecast into crews per step.
func (f *Forecaster) planCrews(res ensemble.Result) ([]int, time.Duration) {
	start := time.Now()

	crews := capacity.ToCrews(f.currentCrews, res.Forecast, res.UpperBound, f.policy)
	if len(crews) > 0 {
		f.currentCrews = crews[0]
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCapacity(duration.Seconds())
	}

	f.logger.Debug("planned crews", "current", f.currentCrews, "summary", capacity.Summarize(f.currentCrews, crews))
	return crews, duration
}

// storeSnapshot persists the forecast snapshot.
func (f *Forecaster) storeSnapshot(ctx context.Context, res ensemble.Result, crews []int) error {
	snapshot := storage.Snapshot{
		Series:           f.series,
		Metric:           f.metric,
		GeneratedAt:      time.Now(),
		StepSeconds:      int(f.step.Seconds()),
		Horizon:          f.horizon,
		Values:           res.Forecast,
		Lower:            res.LowerBound,
		Upper:            res.UpperBound,
		Confidence:       res.Confidence,
		Regime:           string(res.Regime.Regime),
		RegimeConfidence: res.Regime.Confidence,
		Weights:          res.Weights,
		Crews:            crews,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return f.store.Put(ctx, snapshot)
}

func (f *Forecaster) recordError(component, reason string) {
	if f.metrics != nil {
		f.metrics.RecordError(component, reason)
	}
}
