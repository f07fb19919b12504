package models

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minChangepointSeries is the shortest history scanned for changepoints.
const minChangepointSeries = 10

// changepointSensitivity is the relative slope change that marks a changepoint.
const changepointSensitivity = 0.1

// slopeTolerance absorbs floating point noise when comparing near-zero slopes.
const slopeTolerance = 1e-9

// DetectChangepoints returns up to n indices where the local linear slope
// changes by more than 10% of the preceding slope.
//
// A window of floor(len/(n+1)) points slides across the series one window at a
// time, starting one window in and stopping one window before the end. At each
// candidate index the OLS slope of the window before is compared with the
// window after. Series shorter than 10 points, or windows shorter than two
// points, yield no changepoints.
func DetectChangepoints(series []float64, n int) []int {
	changepoints := []int{}
	if n <= 0 || len(series) < minChangepointSeries {
		return changepoints
	}

	window := len(series) / (n + 1)
	if window < 2 {
		return changepoints
	}

	for i := window; i < len(series)-window; i += window {
		before := slope(series[i-window : i])
		after := slope(series[i : i+window])
		if math.Abs(after-before) > changepointSensitivity*math.Abs(before)+slopeTolerance {
			changepoints = append(changepoints, i)
			if len(changepoints) == n {
				break
			}
		}
	}
	return changepoints
}

// FitPiecewiseTrend fits a continuous piecewise linear trend through series.
//
// Without changepoints a single OLS line is fitted. Otherwise the series is cut
// at [0, changepoints..., len-1]; each segment gets its own OLS slope, and its
// level is carried on from the last fitted value of the previous segment so
// the trend never jumps at a boundary.
func FitPiecewiseTrend(series []float64, changepoints []int) []float64 {
	n := len(series)
	trend := make([]float64, n)
	if n == 0 {
		return trend
	}

	if len(changepoints) == 0 {
		intercept, s := olsFit(series)
		for i := range trend {
			trend[i] = intercept + s*float64(i)
		}
		return trend
	}

	bounds := make([]int, 0, len(changepoints)+2)
	bounds = append(bounds, 0)
	for _, cp := range changepoints {
		if cp > bounds[len(bounds)-1] && cp < n-1 {
			bounds = append(bounds, cp)
		}
	}
	bounds = append(bounds, n-1)

	for seg := 0; seg < len(bounds)-1; seg++ {
		start, end := bounds[seg], bounds[seg+1]
		if seg == len(bounds)-2 {
			end = n
		}
		segment := series[start:end]
		intercept, s := olsFit(segment)

		if seg == 0 {
			for i := start; i < end; i++ {
				trend[i] = intercept + s*float64(i-start)
			}
			continue
		}

		level := trend[start-1]
		for i := start; i < end; i++ {
			trend[i] = level + s*float64(i-start+1)
		}
	}
	return trend
}

// slope returns the OLS slope of values against their index.
func slope(values []float64) float64 {
	_, s := olsFit(values)
	return s
}

// olsFit regresses values on 0..len-1. Fewer than two points give a flat line
// through the only value (or zero).
func olsFit(values []float64) (intercept, slope float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return stat.Mean(values, nil), 0
	}
	return intercept, slope
}
