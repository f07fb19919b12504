package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SeasonalityMode selects how trend and seasonality are combined.
type SeasonalityMode string

const (
	Additive       SeasonalityMode = "additive"
	Multiplicative SeasonalityMode = "multiplicative"
)

// Degenerate forecast used for histories too short to decompose.
const (
	minProphetHistory  = 4
	fallbackConfidence = 0.3
	fallbackBand       = 0.2
)

// varianceEpsilon is the variance below which a series is treated as constant.
const varianceEpsilon = 1e-12

// ProphetConfig tunes the decomposition forecaster.
//
// WeeklySeasonality, DailySeasonality and Intervals are accepted for
// compatibility with Prophet-style configuration but do not change the
// output: intervals are always the 95% band. ChangePointPriorScale and
// SeasonalityPriorScale do not affect the fit either. They are carried
// through parameter search and reported with the chosen configuration, but
// since candidates differing only in them score the same, the reported values
// are the first grid entries among the tied candidates.
type ProphetConfig struct {
	SeasonalityMode       SeasonalityMode `json:"seasonalityMode"`
	ChangePointPriorScale float64         `json:"changePointPriorScale"`
	SeasonalityPriorScale float64         `json:"seasonalityPriorScale"`
	NChangepoints         int             `json:"nChangepoints"`
	YearlySeasonality     bool            `json:"yearlySeasonality"`
	WeeklySeasonality     bool            `json:"weeklySeasonality"`
	DailySeasonality      bool            `json:"dailySeasonality"`
	Intervals             []float64       `json:"intervals"`
	Period                int             `json:"period"`
	Harmonics             int             `json:"harmonics"`
}

// DefaultProphetConfig returns the baseline configuration for monthly data.
func DefaultProphetConfig() ProphetConfig {
	return ProphetConfig{
		SeasonalityMode:       Additive,
		ChangePointPriorScale: 0.05,
		SeasonalityPriorScale: 10.0,
		NChangepoints:         5,
		YearlySeasonality:     true,
		WeeklySeasonality:     false,
		DailySeasonality:      false,
		Intervals:             []float64{0.8, 0.95},
		Period:                DefaultPeriod,
		Harmonics:             DefaultHarmonics,
	}
}

// Prophet is a Prophet-like decomposition forecaster: piecewise linear trend
// with automatic changepoints plus Fourier seasonality.
//
// When AutoTune is set, every Forecast call first runs OptimizeParameters on
// the history and forecasts with the winning configuration.
type Prophet struct {
	Config            ProphetConfig
	AutoTune          bool
	ValidationPeriods int
}

// NewProphet creates a forecaster with cfg. Zero Period and Harmonics fall
// back to the defaults and an empty SeasonalityMode means additive.
func NewProphet(cfg ProphetConfig) *Prophet {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Harmonics <= 0 {
		cfg.Harmonics = DefaultHarmonics
	}
	if cfg.SeasonalityMode == "" {
		cfg.SeasonalityMode = Additive
	}
	return &Prophet{Config: cfg}
}

// Name returns the model identifier.
func (p *Prophet) Name() string {
	if p.AutoTune {
		return "prophet-tuned"
	}
	return "prophet"
}

// Family reports the decomposition family.
func (p *Prophet) Family() Family {
	return FamilyDecomposition
}

// Forecast decomposes history and projects horizon steps.
//
// NaN and infinite observations are replaced by the preceding finite value.
// Histories with fewer than four finite points get a flat forecast at the last
// value with a ±20% band and confidence 0.3.
func (p *Prophet) Forecast(ctx context.Context, history []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("prophet forecast: %w", ErrInvalidHorizon)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	cfg := p.Config
	if p.AutoTune {
		tuned, err := p.OptimizeParameters(ctx, history, p.ValidationPeriods)
		if err != nil {
			return Result{}, fmt.Errorf("tune prophet: %w", err)
		}
		cfg = tuned
	}

	res := prophetForecast(history, horizon, cfg)
	res.Model = p.Name()
	return res, nil
}

// Decompose returns the trend, seasonal and residual components of series
// under the forecaster's configuration. Non-finite points are filled as in
// Forecast.
func (p *Prophet) Decompose(series []float64) Decomposition {
	filled, _ := fillNonFinite(series)
	d, _, _ := decompose(filled, p.Config)
	return d
}

func prophetForecast(history []float64, horizon int, cfg ProphetConfig) Result {
	series, valid := fillNonFinite(history)
	n := len(series)
	if valid < minProphetHistory {
		return fallbackForecast(series, horizon)
	}

	d, factors, changepoints := decompose(series, cfg)

	last := d.Trend[n-1]
	step := last - d.Trend[n-2]

	forecast := make([]float64, horizon)
	season := extrapolateSeasonal(factors, cfg.Period, horizon)
	for p := range forecast {
		t := last + step*float64(p+1)
		if cfg.SeasonalityMode == Multiplicative {
			forecast[p] = t * (1 + season[p])
		} else {
			forecast[p] = t + season[p]
		}
	}

	sigma := stat.StdDev(d.Residuals, nil)
	if math.IsNaN(sigma) {
		sigma = 0
	}
	lower, upper := intervals(forecast, sigma)

	return Result{
		Forecast:     forecast,
		LowerBound:   lower,
		UpperBound:   upper,
		Trend:        d.Trend,
		Seasonal:     d.Seasonal,
		Residuals:    d.Residuals,
		Changepoints: changepoints,
		Confidence:   explainedVariance(series, d.Residuals),
	}
}

// decompose fits the trend and seasonality of series. Seasonal always holds the
// additive contribution so that series = Trend + Seasonal + Residuals. The
// second return value is the raw seasonal signal used for extrapolation: an
// additive offset, or in multiplicative mode a relative factor of the trend.
func decompose(series []float64, cfg ProphetConfig) (Decomposition, []float64, []int) {
	n := len(series)
	if n < minProphetHistory {
		res := fallbackForecast(series, 1)
		d := Decomposition{Trend: res.Trend, Seasonal: res.Seasonal, Residuals: res.Residuals}
		return d, make([]float64, n), []int{}
	}

	changepoints := DetectChangepoints(series, cfg.NChangepoints)
	trend := FitPiecewiseTrend(series, changepoints)

	signal := make([]float64, n)
	if cfg.YearlySeasonality {
		target := make([]float64, n)
		for i, v := range series {
			if cfg.SeasonalityMode == Multiplicative {
				if math.Abs(trend[i]) > varianceEpsilon {
					target[i] = v/trend[i] - 1
				}
				continue
			}
			target[i] = v - trend[i]
		}
		signal = CalculateSeasonality(target, cfg.Period, cfg.Harmonics)
	}

	seasonal := make([]float64, n)
	residuals := make([]float64, n)
	for i, v := range series {
		if cfg.SeasonalityMode == Multiplicative {
			seasonal[i] = trend[i] * signal[i]
		} else {
			seasonal[i] = signal[i]
		}
		residuals[i] = v - trend[i] - seasonal[i]
	}

	return Decomposition{Trend: trend, Seasonal: seasonal, Residuals: residuals}, signal, changepoints
}

// fillNonFinite copies series with every NaN or infinite value replaced by the
// previous finite one. A leading run takes the first finite value and a
// series with none becomes zeros. The second result counts the finite points.
func fillNonFinite(series []float64) ([]float64, int) {
	out := make([]float64, len(series))
	valid := 0
	first := -1
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if i > 0 {
				out[i] = out[i-1]
			}
			continue
		}
		out[i] = v
		valid++
		if first < 0 {
			first = i
		}
	}
	for i := 0; i < first; i++ {
		out[i] = out[first]
	}
	return out, valid
}

func fallbackForecast(series []float64, horizon int) Result {
	var last float64
	if len(series) > 0 {
		last = series[len(series)-1]
	}

	forecast := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	band := fallbackBand * math.Abs(last)
	for i := range forecast {
		forecast[i] = last
		lower[i] = last - band
		upper[i] = last + band
	}

	trend := make([]float64, len(series))
	for i := range trend {
		trend[i] = last
	}

	return Result{
		Forecast:     forecast,
		LowerBound:   lower,
		UpperBound:   upper,
		Trend:        trend,
		Seasonal:     make([]float64, len(series)),
		Residuals:    make([]float64, len(series)),
		Changepoints: []int{},
		Confidence:   fallbackConfidence,
	}
}

// explainedVariance returns 1 - var(residuals)/var(series) clamped to [0, 1].
// A constant series is fully explained only if its residuals are constant too.
func explainedVariance(series, residuals []float64) float64 {
	dataVar := stat.Variance(series, nil)
	residVar := stat.Variance(residuals, nil)
	if math.IsNaN(dataVar) || math.IsNaN(residVar) {
		return 0
	}
	if dataVar < varianceEpsilon {
		if residVar < varianceEpsilon {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, 1-residVar/dataVar))
}
