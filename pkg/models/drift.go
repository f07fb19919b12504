package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Drift is a trend-following forecaster combining:
//   - Linear trend (OLS slope over a trailing window)
//   - Momentum (change in slope between the older and recent half of history)
//
// Forecast for step t (1-based) is last + slope·t + 0.5·momentum·t², clamped to
// zero when NonNegative is set. Momentum needs at least six points; shorter
// histories extrapolate the slope alone.
//
// Drift suits short or steadily growing histories where a seasonal
// decomposition has too little data to work with.
type Drift struct {
	// Window is the number of trailing points used for the slope. Zero means 10.
	Window int

	// NonNegative clamps forecasts and lower bounds at zero (demand, prices).
	NonNegative bool
}

const (
	defaultDriftWindow = 10
	minMomentumHistory = 6
)

// NewDrift creates a drift forecaster for non-negative series.
func NewDrift() *Drift {
	return &Drift{Window: defaultDriftWindow, NonNegative: true}
}

// Name returns the model identifier.
func (m *Drift) Name() string {
	return "drift"
}

// Family reports the trend family.
func (m *Drift) Family() Family {
	return FamilyTrend
}

// Forecast extrapolates the recent trend and momentum of history.
func (m *Drift) Forecast(ctx context.Context, history []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("drift forecast: %w", ErrInvalidHorizon)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(history) == 0 {
		return Result{}, fmt.Errorf("drift forecast: history cannot be empty")
	}

	window := m.Window
	if window <= 1 {
		window = defaultDriftWindow
	}

	current := history[len(history)-1]
	slope := trailingSlope(history, window)
	momentum := detectMomentum(history, window)

	forecast := make([]float64, horizon)
	for i := range forecast {
		t := float64(i + 1)
		v := current + slope*t + 0.5*momentum*t*t
		if m.NonNegative && v < 0 {
			v = 0
		}
		forecast[i] = v
	}

	sigma := stepResidualStdDev(history, slope)
	lower, upper := intervals(forecast, sigma)
	if m.NonNegative {
		for i := range lower {
			lower[i] = math.Max(0, lower[i])
		}
	}

	return Result{
		Model:        m.Name(),
		Forecast:     forecast,
		LowerBound:   lower,
		UpperBound:   upper,
		Changepoints: []int{},
		Confidence:   trendFit(history, window),
	}, nil
}

// trailingSlope is the OLS slope over the last window points.
func trailingSlope(values []float64, window int) float64 {
	if len(values) < 2 {
		return 0
	}
	if len(values) < window {
		window = len(values)
	}
	return slope(values[len(values)-window:])
}

// detectMomentum compares the slope of the recent half of values to the older
// half. Positive momentum means the series is accelerating upward.
func detectMomentum(values []float64, window int) float64 {
	if len(values) < minMomentumHistory {
		return 0
	}
	mid := len(values) / 2
	older := trailingSlope(values[:mid], window)
	recent := trailingSlope(values[mid:], window)

	// Spread the change in slope over the distance between the half midpoints.
	return (recent - older) / float64(len(values)-mid)
}

// stepResidualStdDev is the spread of one-step changes around slope.
func stepResidualStdDev(values []float64, slope float64) float64 {
	if len(values) < 3 {
		return 0
	}
	errs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		errs[i-1] = values[i] - values[i-1] - slope
	}
	sd := stat.StdDev(errs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// trendFit returns the R² of a straight line through the trailing window,
// clamped to [0, 1]. A perfectly flat window is a perfect fit.
func trendFit(values []float64, window int) float64 {
	if len(values) < 3 {
		return fallbackConfidence
	}
	if len(values) < window {
		window = len(values)
	}
	w := values[len(values)-window:]
	if stat.Variance(w, nil) < varianceEpsilon {
		return 1
	}

	xs := make([]float64, len(w))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, w, nil, false)
	r2 := stat.RSquared(xs, w, nil, alpha, beta)
	if math.IsNaN(r2) {
		return 0
	}
	return math.Max(0, math.Min(1, r2))
}
