// Package regime classifies the growth pattern of a series.
//
// The classifier is a small decision list over five features:
//
//	Slope           OLS slope per period divided by the mean level
//	LinearR2        R² of a straight line through the series
//	LogR2           R² of a straight line through log(series); 0 unless every value is positive
//	HalfSlopeRatio  slope of the second half over slope of the first half, capped to [-10, 10]
//	CV              standard deviation over the mean level
//
// Rules, first match wins:
//
//	fewer than 6 points or non-finite values  indeterminate, confidence 0.2
//	|Slope| < 0.005, or LinearR2 < 0.3 and |Slope| < 0.02   stable
//	Slope < 0                                 decline
//	HalfSlopeRatio >= 1.5 and LogR2 >= LinearR2  exponential_growth
//	HalfSlopeRatio <= 0.6                     decelerating
//	otherwise                                 linear_growth
package regime

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Regime is a growth pattern label.
type Regime string

const (
	Indeterminate     Regime = "indeterminate"
	Stable            Regime = "stable"
	LinearGrowth      Regime = "linear_growth"
	ExponentialGrowth Regime = "exponential_growth"
	Decelerating      Regime = "decelerating"
	Decline           Regime = "decline"
)

// MinPoints is the shortest series that gets a real classification.
const MinPoints = 6

// IndeterminateConfidence is attached to labels for series that cannot be classified.
const IndeterminateConfidence = 0.2

const (
	stableSlope  = 0.005
	weakFitSlope = 0.02
	weakFitR2    = 0.3
	accelerating = 1.5
	slowing      = 0.6
	maxHalfRatio = 10.0
	levelEpsilon = 1e-9
	slopeEpsilon = 1e-12
)

// Features are the statistics a Label was derived from.
type Features struct {
	Slope          float64 `json:"slope"`
	LinearR2       float64 `json:"linearR2"`
	LogR2          float64 `json:"logR2"`
	HalfSlopeRatio float64 `json:"halfSlopeRatio"`
	CV             float64 `json:"cv"`
}

// Label is the classification of one series.
type Label struct {
	Regime     Regime   `json:"regime"`
	Confidence float64  `json:"confidence"`
	Features   Features `json:"features"`
}

// Detect classifies series. It never fails: short or invalid input yields an
// indeterminate label with confidence 0.2.
func Detect(series []float64) Label {
	indeterminate := Label{Regime: Indeterminate, Confidence: IndeterminateConfidence}
	if len(series) < MinPoints {
		return indeterminate
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return indeterminate
		}
	}

	f := features(series)
	label := Label{Features: f}

	switch {
	case math.Abs(f.Slope) < stableSlope || (f.LinearR2 < weakFitR2 && math.Abs(f.Slope) < weakFitSlope):
		label.Regime = Stable
		label.Confidence = 1 - 2*f.CV
	case f.Slope < 0:
		label.Regime = Decline
		label.Confidence = f.LinearR2
	case f.HalfSlopeRatio >= accelerating && f.LogR2 >= f.LinearR2:
		label.Regime = ExponentialGrowth
		label.Confidence = f.LogR2
	case f.HalfSlopeRatio <= slowing:
		label.Regime = Decelerating
		label.Confidence = 1 - 0.5*math.Max(0, f.HalfSlopeRatio)/slowing
	default:
		label.Regime = LinearGrowth
		label.Confidence = f.LinearR2
	}
	label.Confidence = clamp01(label.Confidence)
	return label
}

func features(series []float64) Features {
	mean, variance := stat.MeanVariance(series, nil)
	level := math.Abs(mean)
	if level < levelEpsilon {
		level = 1
	}

	_, slope := fit(series)
	f := Features{
		Slope:    slope / level,
		LinearR2: rSquared(series),
		CV:       math.Sqrt(variance) / level,
	}

	positive := true
	for _, v := range series {
		if v <= 0 {
			positive = false
			break
		}
	}
	if positive {
		logs := make([]float64, len(series))
		for i, v := range series {
			logs[i] = math.Log(v)
		}
		f.LogR2 = rSquared(logs)
	}

	mid := len(series) / 2
	_, first := fit(series[:mid])
	_, second := fit(series[mid:])
	switch {
	case first > slopeEpsilon:
		f.HalfSlopeRatio = second / first
	case second > slopeEpsilon:
		f.HalfSlopeRatio = maxHalfRatio
	default:
		f.HalfSlopeRatio = 1
	}
	f.HalfSlopeRatio = math.Max(-maxHalfRatio, math.Min(maxHalfRatio, f.HalfSlopeRatio))
	return f
}

func index(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

func fit(values []float64) (alpha, beta float64) {
	if len(values) < 2 {
		return 0, 0
	}
	return stat.LinearRegression(index(len(values)), values, nil, false)
}

// rSquared is the R² of a line through values; a flat series fits perfectly.
func rSquared(values []float64) float64 {
	if stat.Variance(values, nil) < 1e-12 {
		return 1
	}
	xs := index(len(values))
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	r2 := stat.RSquared(xs, values, nil, alpha, beta)
	if math.IsNaN(r2) {
		return 0
	}
	return clamp01(r2)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
