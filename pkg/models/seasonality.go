package models

import "math"

// Defaults for the Fourier seasonality estimator (monthly data, yearly cycle).
const (
	DefaultPeriod    = 12
	DefaultHarmonics = 3
)

// CalculateSeasonality estimates an in-sample seasonal component as a sum of
// Fourier terms.
//
// For each harmonic h in 1..harmonics the sine and cosine coefficients are the
// correlation sums (2/n)·Σ v·sin(2πhi/period) and (2/n)·Σ v·cos(2πhi/period).
// The returned slice has the length of series; it is not extrapolated.
func CalculateSeasonality(series []float64, period, harmonics int) []float64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	if harmonics <= 0 {
		harmonics = DefaultHarmonics
	}

	n := len(series)
	seasonal := make([]float64, n)
	if n == 0 {
		return seasonal
	}

	for h := 1; h <= harmonics; h++ {
		var a, b float64
		for i, v := range series {
			angle := 2 * math.Pi * float64(h) * float64(i) / float64(period)
			a += v * math.Sin(angle)
			b += v * math.Cos(angle)
		}
		a *= 2 / float64(n)
		b *= 2 / float64(n)

		for i := range seasonal {
			angle := 2 * math.Pi * float64(h) * float64(i) / float64(period)
			seasonal[i] += a*math.Sin(angle) + b*math.Cos(angle)
		}
	}
	return seasonal
}

// extrapolateSeasonal reuses the last phase-aligned full cycle of seasonal:
// step p takes the value whose phase is (n+p) mod period. With less than one
// full period of history every step contributes zero.
func extrapolateSeasonal(seasonal []float64, period, horizon int) []float64 {
	out := make([]float64, horizon)
	n := len(seasonal)
	if period <= 0 || n < period {
		return out
	}

	start := (n/period - 1) * period
	for p := range out {
		out[p] = seasonal[start+(n+p)%period]
	}
	return out
}
