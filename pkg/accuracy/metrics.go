// Package accuracy provides scale-independent forecast accuracy metrics.
//
// Every function here is total: empty, mismatched or degenerate input never
// panics and never yields NaN. Instead each metric returns a fixed "worst case"
// sentinel so callers (backtests, ensembles, reports) can treat all outputs
// uniformly:
//
//   - sMAPE:         100
//   - MASE:          10
//   - MAE:           1000
//   - weighted MAPE: 100
package accuracy

import (
	"math"
)

// Sentinel values returned when a metric cannot be computed.
const (
	WorstSMAPE        = 100.0
	WorstMASE         = 10.0
	WorstMAE          = 1000.0
	WorstWeightedMAPE = 100.0
)

// DefaultSeasonalPeriod is the naive-seasonal lag used by MASE (monthly data).
const DefaultSeasonalPeriod = 12

// DefaultDecay is the per-step decay applied by WeightedMAPE.
const DefaultDecay = 0.9

// nearZero is the magnitude below which an actual value is skipped by WeightedMAPE.
const nearZero = 0.01

// Metrics is the full accuracy report for one forecast.
type Metrics struct {
	SMAPE        float64    `json:"smape"`
	MASE         float64    `json:"mase"`
	MAE          float64    `json:"mae"`
	WeightedMAPE float64    `json:"weightedMape"`
	Confidence   Confidence `json:"confidence"`
	Quality      Quality    `json:"quality"`
}

// Worst returns the sentinel report used when nothing could be measured.
func Worst() Metrics {
	return Metrics{
		SMAPE:        WorstSMAPE,
		MASE:         WorstMASE,
		MAE:          WorstMAE,
		WeightedMAPE: WorstWeightedMAPE,
		Confidence:   ConfidenceBaja,
		Quality:      QualityLow,
	}
}

// Calculate computes every metric for a forecast and classifies the result.
// MASE uses DefaultSeasonalPeriod and weighted MAPE uses DefaultDecay.
func Calculate(actual, forecast []float64, dq DataQuality) Metrics {
	m := Metrics{
		SMAPE:        SMAPE(actual, forecast),
		MASE:         MASE(actual, forecast, DefaultSeasonalPeriod),
		MAE:          MAE(actual, forecast),
		WeightedMAPE: WeightedMAPE(actual, forecast, DefaultDecay),
	}
	m.Confidence, m.Quality = Classify(m.SMAPE, m.MASE, dq)
	return m
}

func invalidPair(actual, forecast []float64) bool {
	return len(actual) == 0 || len(actual) != len(forecast)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SMAPE returns the symmetric mean absolute percentage error in percent.
// Points where both actual and forecast are zero are skipped. The result is
// bounded by [0, 200].
func SMAPE(actual, forecast []float64) float64 {
	if invalidPair(actual, forecast) {
		return WorstSMAPE
	}

	sum := 0.0
	valid := 0
	for i, a := range actual {
		f := forecast[i]
		denom := math.Abs(a) + math.Abs(f)
		if denom <= 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
			continue
		}
		sum += math.Abs(a-f) / (denom / 2)
		valid++
	}

	if valid == 0 {
		return WorstSMAPE
	}
	return sum / float64(valid) * 100
}

// MASE returns the mean absolute scaled error: the forecast MAE divided by the
// MAE of a seasonal-naive forecast at lag seasonalPeriod. When the history is
// too short for any seasonal-naive point, or the naive error is zero, plain
// MAE is returned instead. Non-finite points are skipped on both sides.
func MASE(actual, forecast []float64, seasonalPeriod int) float64 {
	if invalidPair(actual, forecast) {
		return WorstMASE
	}
	if seasonalPeriod <= 0 {
		seasonalPeriod = DefaultSeasonalPeriod
	}

	mae, ok := meanAbsError(actual, forecast)
	if !ok {
		return WorstMASE
	}

	naiveSum := 0.0
	naiveCount := 0
	for i := seasonalPeriod; i < len(actual); i++ {
		if !finite(actual[i]) || !finite(actual[i-seasonalPeriod]) {
			continue
		}
		naiveSum += math.Abs(actual[i] - actual[i-seasonalPeriod])
		naiveCount++
	}

	if naiveCount == 0 {
		return mae
	}

	naiveMAE := naiveSum / float64(naiveCount)
	if naiveMAE <= 0 {
		return mae
	}
	return mae / naiveMAE
}

// MAE returns the mean absolute error over the pairs where both values are
// finite.
func MAE(actual, forecast []float64) float64 {
	if invalidPair(actual, forecast) {
		return WorstMAE
	}
	mae, ok := meanAbsError(actual, forecast)
	if !ok {
		return WorstMAE
	}
	return mae
}

// meanAbsError reports false when no pair had two finite values.
func meanAbsError(actual, forecast []float64) (float64, bool) {
	sum := 0.0
	valid := 0
	for i, a := range actual {
		if !finite(a) || !finite(forecast[i]) {
			continue
		}
		sum += math.Abs(a - forecast[i])
		valid++
	}
	if valid == 0 {
		return 0, false
	}
	return sum / float64(valid), true
}

// WeightedMAPE returns a MAPE in percent where point i carries weight
// decay^(n-1-i), favoring the most recent observations. Actual values with
// magnitude at or below 0.01 are skipped, as are non-finite pairs.
func WeightedMAPE(actual, forecast []float64, decay float64) float64 {
	if invalidPair(actual, forecast) {
		return WorstWeightedMAPE
	}
	if decay <= 0 || decay > 1 {
		decay = DefaultDecay
	}

	n := len(actual)
	weightedSum := 0.0
	totalWeight := 0.0
	for i, a := range actual {
		if math.Abs(a) <= nearZero || !finite(a) || !finite(forecast[i]) {
			continue
		}
		w := math.Pow(decay, float64(n-1-i))
		weightedSum += w * math.Abs((a-forecast[i])/a)
		totalWeight += w
	}

	if totalWeight == 0 {
		return WorstWeightedMAPE
	}
	return weightedSum / totalWeight * 100
}
