// Package validation scores forecasters by walk-forward (rolling origin)
// backtesting.
//
// For every cut point i the forecaster is trained on series[:i] and asked for
// the next TestSize points, which are compared to series[i:i+TestSize]. All
// actual/forecast pairs are pooled in cut order before metrics are computed,
// so the result is not an average of per-cut metrics.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/escolta/pkg/accuracy"
	"github.com/HatiCode/escolta/pkg/models"
)

// Defaults for RollingBacktest.
const (
	DefaultMinTrainSize = 6
	DefaultTestSize     = 1
)

// ForecastFunc forecasts horizon points following train.
type ForecastFunc func(ctx context.Context, train []float64, horizon int) ([]float64, error)

// FromForecaster adapts a models.Forecaster to a ForecastFunc.
func FromForecaster(f models.Forecaster) ForecastFunc {
	return func(ctx context.Context, train []float64, horizon int) ([]float64, error) {
		res, err := f.Forecast(ctx, train, horizon)
		if err != nil {
			return nil, err
		}
		return res.Forecast, nil
	}
}

type options struct {
	minTrainSize   int
	testSize       int
	seasonalPeriod int
	dataQuality    accuracy.DataQuality
	concurrency    int
	logger         *slog.Logger
}

// Option configures a backtest.
type Option func(*options)

// WithMinTrainSize sets the length of the first training window.
func WithMinTrainSize(n int) Option {
	return func(o *options) { o.minTrainSize = n }
}

// WithTestSize sets how many points are forecast at each cut.
func WithTestSize(n int) Option {
	return func(o *options) { o.testSize = n }
}

// WithSeasonalPeriod sets the MASE seasonal-naive lag.
func WithSeasonalPeriod(n int) Option {
	return func(o *options) { o.seasonalPeriod = n }
}

// WithDataQuality sets the data quality used to classify the result.
func WithDataQuality(dq accuracy.DataQuality) Option {
	return func(o *options) { o.dataQuality = dq }
}

// WithConcurrency bounds the number of cuts evaluated at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger sets the logger used to report skipped cuts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		minTrainSize:   DefaultMinTrainSize,
		testSize:       DefaultTestSize,
		seasonalPeriod: accuracy.DefaultSeasonalPeriod,
		dataQuality:    accuracy.DataQualityMedium,
		concurrency:    runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minTrainSize < 1 {
		o.minTrainSize = DefaultMinTrainSize
	}
	if o.testSize < 1 {
		o.testSize = DefaultTestSize
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Report is the detailed outcome of a backtest.
type Report struct {
	Metrics  accuracy.Metrics `json:"metrics"`
	Cuts     int              `json:"cuts"`
	Skipped  int              `json:"skipped"`
	Actual   []float64        `json:"actual"`
	Forecast []float64        `json:"forecast"`
}

// RollingBacktest returns the pooled accuracy of fn over every cut of series.
// When no cut produced a usable forecast it returns accuracy.Worst().
func RollingBacktest(ctx context.Context, series []float64, fn ForecastFunc, opts ...Option) accuracy.Metrics {
	return Backtest(ctx, series, fn, opts...).Metrics
}

type cutResult struct {
	forecast []float64
	ok       bool
}

// Backtest runs the walk-forward evaluation and reports the pooled pairs.
//
// Cuts run concurrently. A cut is skipped when fn returns an error, panics,
// returns fewer than TestSize points or returns a non-finite value. Cuts not
// started before ctx is cancelled are skipped too.
func Backtest(ctx context.Context, series []float64, fn ForecastFunc, opts ...Option) Report {
	o := newOptions(opts)

	first := o.minTrainSize
	last := len(series) - o.testSize
	if fn == nil || last < first {
		return Report{Metrics: accuracy.Worst()}
	}

	results := make([]cutResult, last-first+1)

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for i := first; i <= last; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			forecast, err := runCut(ctx, series, i, o.testSize, fn)
			if err != nil {
				o.logger.Debug("backtest cut skipped", "cut", i, "error", err)
				return nil
			}
			results[i-first] = cutResult{forecast: forecast, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Actual: []float64{}, Forecast: []float64{}}
	for idx, r := range results {
		if !r.ok {
			report.Skipped++
			continue
		}
		cut := first + idx
		report.Cuts++
		report.Actual = append(report.Actual, series[cut:cut+o.testSize]...)
		report.Forecast = append(report.Forecast, r.forecast...)
	}

	if report.Cuts == 0 {
		report.Metrics = accuracy.Worst()
		return report
	}

	m := accuracy.Metrics{
		SMAPE:        accuracy.SMAPE(report.Actual, report.Forecast),
		MASE:         accuracy.MASE(report.Actual, report.Forecast, o.seasonalPeriod),
		MAE:          accuracy.MAE(report.Actual, report.Forecast),
		WeightedMAPE: accuracy.WeightedMAPE(report.Actual, report.Forecast, accuracy.DefaultDecay),
	}
	m.Confidence, m.Quality = accuracy.Classify(m.SMAPE, m.MASE, o.dataQuality)
	report.Metrics = m
	return report
}

// runCut forecasts testSize points after series[:cut], converting a panic in
// fn into an error.
func runCut(ctx context.Context, series []float64, cut, testSize int, fn ForecastFunc) (forecast []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forecaster panicked: %v", r)
		}
	}()

	train := make([]float64, cut)
	copy(train, series[:cut])

	out, err := fn(ctx, train, testSize)
	if err != nil {
		return nil, err
	}
	if len(out) < testSize {
		return nil, fmt.Errorf("forecaster returned %d points, want %d", len(out), testSize)
	}
	out = out[:testSize]
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("forecaster returned non-finite value %v", v)
		}
	}
	return append([]float64(nil), out...), nil
}
