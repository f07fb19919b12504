// Package models provides forecasting model implementations.
//
// Every model is stateless: Forecast receives the full history and returns a
// freshly allocated Result, so a single instance can serve concurrent callers
// and be re-run on every cut of a walk-forward backtest.
package models

import (
	"context"
	"errors"
)

// ErrInvalidHorizon is returned when a forecast is requested for fewer than one step.
var ErrInvalidHorizon = errors.New("horizon must be >= 1")

// Forecaster produces a horizon-step forecast from an ordered history of
// equally spaced observations.
type Forecaster interface {
	// Name identifies the forecaster in ensemble weights and logs.
	Name() string

	// Forecast projects horizon steps past the end of history.
	Forecast(ctx context.Context, history []float64, horizon int) (Result, error)
}

// Family groups forecasters by the kind of signal they model. The ensemble
// uses it to decide which forecasters suit a growth regime.
type Family string

const (
	FamilyDecomposition  Family = "decomposition"
	FamilyTrend          Family = "trend"
	FamilyAutoregressive Family = "autoregressive"
	FamilyExternal       Family = "external"
)

// FamilyOf reports the family of f. Forecasters that do not declare one are
// treated as external.
func FamilyOf(f Forecaster) Family {
	if fam, ok := f.(interface{ Family() Family }); ok {
		return fam.Family()
	}
	return FamilyExternal
}

// Decomposition splits a history into trend, seasonal and residual parts of the
// same length as the history.
type Decomposition struct {
	Trend     []float64 `json:"trend"`
	Seasonal  []float64 `json:"seasonal"`
	Residuals []float64 `json:"residuals"`
}

// Result is the output of a single forecast call.
//
// Forecast, LowerBound and UpperBound have one entry per horizon step. Trend,
// Seasonal and Residuals are aligned with the history; forecasters that do not
// decompose the series leave them empty.
type Result struct {
	Model        string    `json:"model"`
	Forecast     []float64 `json:"forecast"`
	LowerBound   []float64 `json:"lowerBound"`
	UpperBound   []float64 `json:"upperBound"`
	Trend        []float64 `json:"trend,omitempty"`
	Seasonal     []float64 `json:"seasonal,omitempty"`
	Residuals    []float64 `json:"residuals,omitempty"`
	Changepoints []int     `json:"changepoints"`
	Confidence   float64   `json:"confidence"`
}

// Fitted returns trend+seasonal for every history point, or nil when the
// forecaster did not produce a decomposition.
func (r Result) Fitted() []float64 {
	if len(r.Trend) == 0 || len(r.Trend) != len(r.Seasonal) {
		return nil
	}
	out := make([]float64, len(r.Trend))
	for i := range r.Trend {
		out[i] = r.Trend[i] + r.Seasonal[i]
	}
	return out
}

// z95 is the two-sided normal quantile for a 95% prediction interval.
const z95 = 1.96

// intervals returns forecast ± z95·sigma.
func intervals(forecast []float64, sigma float64) (lower, upper []float64) {
	lower = make([]float64, len(forecast))
	upper = make([]float64, len(forecast))
	for i, v := range forecast {
		lower[i] = v - z95*sigma
		upper[i] = v + z95*sigma
	}
	return lower, upper
}
