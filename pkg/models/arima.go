package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ARIMA forecasts with an AutoRegressive Integrated Moving Average model.
//
// ARIMA(p,d,q) where:
//   - p: AutoRegressive order (how many past values to use)
//   - d: Differencing order (trend removal: 0=none, 1=linear, 2=quadratic)
//   - q: Moving Average order (how many past errors to use)
//
// Coefficients are re-estimated from the history on every Forecast call, so an
// ARIMA value is safe for concurrent use.
type ARIMA struct {
	P, D, Q int

	// NonNegative clamps forecasts and lower bounds at zero.
	NonNegative bool
}

// NewARIMA creates an ARIMA(p,d,q) forecaster for non-negative series.
//
// Zero orders select the defaults p=1, d=1, q=1. Returns an error for negative
// orders or d > 2.
func NewARIMA(p, d, q int) (*ARIMA, error) {
	if p < 0 || q < 0 {
		return nil, errors.New("p and q must be >= 0")
	}
	if d < 0 || d > 2 {
		return nil, errors.New("d must be in range [0, 2]")
	}
	if p == 0 {
		p = 1
	}
	if d == 0 {
		d = 1
	}
	if q == 0 {
		q = 1
	}
	return &ARIMA{P: p, D: d, Q: q, NonNegative: true}, nil
}

// Name returns the model name with ARIMA parameters.
func (m *ARIMA) Name() string {
	return fmt.Sprintf("arima(%d,%d,%d)", m.P, m.D, m.Q)
}

// Family reports the autoregressive family.
func (m *ARIMA) Family() Family {
	return FamilyAutoregressive
}

// Forecast fits ARIMA(p,d,q) to history and projects horizon steps.
//
// Requires max(p+d, q+d, 10) points.
func (m *ARIMA) Forecast(ctx context.Context, history []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("%s forecast: %w", m.Name(), ErrInvalidHorizon)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	minPoints := max(m.P+m.D, m.Q+m.D, 10)
	if len(history) < minPoints {
		return Result{}, fmt.Errorf("need at least %d points for %s, got %d", minPoints, m.Name(), len(history))
	}

	res, err := fitAndForecast(history, arimaOrder{p: m.P, d: m.D, q: m.Q}, horizon, m.NonNegative)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", m.Name(), err)
	}
	res.Model = m.Name()
	return res, nil
}

// arimaOrder is the full (p,d,q)(P,D,Q,s) specification shared by ARIMA and SARIMA.
type arimaOrder struct {
	p, d, q    int
	sp, sd, sq int
	season     int
}

// diffStep records one differencing pass so it can be undone on the forecast.
type diffStep struct {
	lag  int
	base []float64
}

// fitAndForecast is the estimation and projection pipeline:
//  1. Difference d times at lag 1, then D times at lag s
//  2. Center the stationary series on its mean
//  3. Fit AR and seasonal AR coefficients (Yule-Walker via Levinson-Durbin)
//  4. Fit MA and seasonal MA coefficients from the AR residuals
//  5. Project recursively with future shocks set to zero
//  6. Integrate back through every differencing pass
func fitAndForecast(values []float64, o arimaOrder, horizon int, nonNegative bool) (Result, error) {
	stationary := clone(values)
	var steps []diffStep
	for range o.d {
		steps = append(steps, diffStep{lag: 1, base: stationary})
		stationary = lagDifference(stationary, 1)
	}
	if o.season > 0 {
		for range o.sd {
			steps = append(steps, diffStep{lag: o.season, base: stationary})
			stationary = lagDifference(stationary, o.season)
		}
	}
	if len(stationary) < 2 {
		return Result{}, errors.New("series too short after differencing")
	}

	mean := stat.Mean(stationary, nil)
	centered := make([]float64, len(stationary))
	for i, v := range stationary {
		centered[i] = v - mean
	}

	arCoeffs := fitAR(centered, o.p)
	seasonalAR := fitSeasonalAR(centered, o.sp, o.season)

	start, residuals := computeResiduals(centered, arCoeffs, seasonalAR, o.season)
	maCoeffs := fitMA(residuals, o.q)
	seasonalMA := fitSeasonalMA(residuals, o.sq, o.season)

	ext := clone(centered)
	shocks := make([]float64, len(centered))
	copy(shocks[start:], residuals)

	for range horizon {
		t := len(ext)
		var pred float64
		for i, c := range arCoeffs {
			pred += c * at(ext, t-1-i)
		}
		for i, c := range seasonalAR {
			pred += c * at(ext, t-(i+1)*o.season)
		}
		for j, c := range maCoeffs {
			pred += c * at(shocks, t-1-j)
		}
		for j, c := range seasonalMA {
			pred += c * at(shocks, t-(j+1)*o.season)
		}
		ext = append(ext, pred)
		shocks = append(shocks, 0)
	}

	future := make([]float64, horizon)
	for i, v := range ext[len(centered):] {
		future[i] = v + mean
	}
	for i := len(steps) - 1; i >= 0; i-- {
		future = integrate(future, steps[i])
	}

	sigma := stat.StdDev(residuals, nil)
	if math.IsNaN(sigma) {
		sigma = 0
	}

	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for i, v := range future {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, errors.New("forecast diverged")
		}
		if nonNegative && v < 0 {
			v = 0
			future[i] = 0
		}
		// Uncertainty grows with the square root of the horizon.
		width := z95 * sigma * math.Sqrt(float64(i+1))
		lower[i] = v - width
		upper[i] = v + width
		if nonNegative {
			lower[i] = math.Max(0, lower[i])
		}
	}

	return Result{
		Forecast:     future,
		LowerBound:   lower,
		UpperBound:   upper,
		Changepoints: []int{},
		Confidence:   explainedVariance(centered, residuals),
	}, nil
}

func at(series []float64, i int) float64 {
	if i < 0 || i >= len(series) {
		return 0
	}
	return series[i]
}

// lagDifference returns series[i+lag] - series[i].
func lagDifference(series []float64, lag int) []float64 {
	if len(series) <= lag {
		return []float64{}
	}
	out := make([]float64, len(series)-lag)
	for i := range out {
		out[i] = series[i+lag] - series[i]
	}
	return out
}

// integrate undoes one differencing pass on future values.
func integrate(future []float64, step diffStep) []float64 {
	ext := clone(step.base)
	for _, f := range future {
		ext = append(ext, f+at(ext, len(ext)-step.lag))
	}
	return ext[len(step.base):]
}

// fitAR estimates AR coefficients using Yule-Walker equations with Levinson-Durbin.
func fitAR(centered []float64, p int) []float64 {
	return yuleWalker(centered, p, 1, 0.5)
}

// fitSeasonalAR estimates seasonal AR coefficients at lag s.
func fitSeasonalAR(centered []float64, P, s int) []float64 {
	if s <= 0 {
		return []float64{}
	}
	return yuleWalker(centered, P, s, 0.3)
}

// yuleWalker solves for order coefficients on autocorrelations at multiples of
// lag. A flat series yields zero coefficients; an unstable solve falls back to
// a single damped first coefficient.
func yuleWalker(centered []float64, order, lag int, fallback float64) []float64 {
	if order <= 0 {
		return []float64{}
	}
	if len(centered) < 2 || stat.Variance(centered, nil) < 1e-10 {
		return make([]float64, order)
	}

	acf := make([]float64, order+1)
	for k := 0; k <= order; k++ {
		acf[k] = autocorr(centered, k*lag)
	}

	coeffs, err := levinsonDurbin(acf, order)
	if err != nil {
		coeffs = make([]float64, order)
		coeffs[0] = fallback
	}
	return coeffs
}

// autocorr computes autocorrelation at given lag.
func autocorr(series []float64, lag int) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}

	mean := stat.Mean(series, nil)
	var c0, ck float64
	for i, v := range series {
		c0 += (v - mean) * (v - mean)
		if i+lag < len(series) {
			ck += (v - mean) * (series[i+lag] - mean)
		}
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

// levinsonDurbin solves Yule-Walker equations efficiently.
func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	v := acf[0]
	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
		}

		if v == 0 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}

		phi[k][k] = num / v
		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}

		v *= 1 - phi[k][k]*phi[k][k]
		if v < 0 {
			return nil, errors.New("negative variance in Levinson-Durbin")
		}
	}

	coeffs := make([]float64, p)
	for i := range p {
		coeffs[i] = phi[p][i+1]
	}
	return coeffs, nil
}

// computeResiduals returns the one-step AR prediction errors and the index of
// centered at which they start.
func computeResiduals(centered, arCoeffs, seasonalAR []float64, s int) (int, []float64) {
	start := max(len(arCoeffs), len(seasonalAR)*s)
	if len(centered) <= start {
		return len(centered), []float64{}
	}

	residuals := make([]float64, len(centered)-start)
	for t := start; t < len(centered); t++ {
		pred := 0.0
		for i, c := range arCoeffs {
			pred += c * centered[t-1-i]
		}
		for i, c := range seasonalAR {
			pred += c * centered[t-(i+1)*s]
		}
		residuals[t-start] = centered[t] - pred
	}
	return start, residuals
}

// fitMA estimates MA coefficients from residual autocorrelations.
func fitMA(residuals []float64, q int) []float64 {
	return residualMA(residuals, q, 1)
}

// fitSeasonalMA estimates seasonal MA coefficients at lag s.
func fitSeasonalMA(residuals []float64, Q, s int) []float64 {
	if s <= 0 {
		return []float64{}
	}
	return residualMA(residuals, Q, s)
}

// residualMA uses residual autocorrelations at multiples of lag as MA
// coefficients, capped below one in magnitude to keep the model invertible.
func residualMA(residuals []float64, order, lag int) []float64 {
	if order <= 0 || len(residuals) == 0 {
		return []float64{}
	}
	coeffs := make([]float64, order)
	for i := 0; i < order && (i+1)*lag < len(residuals); i++ {
		c := autocorr(residuals, (i+1)*lag)
		if math.Abs(c) > 1 {
			c = math.Copysign(0.9, c)
		}
		coeffs[i] = c
	}
	return coeffs
}

func clone(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	return out
}
