package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func generate(n int, f func(i float64) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(float64(i))
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		series  []float64
		want    Regime
		minConf float64
	}{
		{name: "constant", series: generate(12, func(float64) float64 { return 100 }), want: Stable, minConf: 0.99},
		{name: "noisy flat", series: generate(24, func(i float64) float64 { return 100 + 5*math.Sin(i*1.7) }), want: Stable, minConf: 0.9},
		{name: "seasonal without trend", series: generate(36, func(i float64) float64 { return 100 + 10*math.Sin(2*math.Pi*i/12) }), want: Stable, minConf: 0.8},
		{name: "linear growth", series: generate(24, func(i float64) float64 { return 100 + 5*i }), want: LinearGrowth, minConf: 0.99},
		{name: "compounding 10%", series: generate(24, func(i float64) float64 { return 100 * math.Pow(1.1, i) }), want: ExponentialGrowth, minConf: 0.99},
		{name: "compounding 5%", series: generate(24, func(i float64) float64 { return 100 * math.Pow(1.05, i) }), want: ExponentialGrowth, minConf: 0.99},
		{name: "square root", series: generate(24, func(i float64) float64 { return 100 * math.Sqrt(i+1) }), want: Decelerating, minConf: 0.5},
		{name: "saturating", series: generate(24, func(i float64) float64 { return 200 / (1 + math.Exp(-(i-6)/2)) }), want: Decelerating, minConf: 0.9},
		{name: "linear decline", series: generate(24, func(i float64) float64 { return 200 - 5*i }), want: Decline, minConf: 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.series)
			assert.Equal(t, tt.want, got.Regime, "features: %+v", got.Features)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestDetect_Indeterminate(t *testing.T) {
	for _, series := range [][]float64{nil, {1}, {1, 2, 3, 4, 5}, {1, 2, math.NaN(), 4, 5, 6}, {1, 2, 3, math.Inf(1), 5, 6}} {
		got := Detect(series)
		assert.Equal(t, Indeterminate, got.Regime)
		assert.Equal(t, IndeterminateConfidence, got.Confidence)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	series := generate(30, func(i float64) float64 { return 50 + 2*i + 7*math.Sin(i) })
	assert.Equal(t, Detect(series), Detect(series))
}

func TestDetect_ZeroMeanSeries(t *testing.T) {
	series := generate(20, func(i float64) float64 { return math.Sin(2 * math.Pi * i / 4) })

	got := Detect(series)
	assert.NotEqual(t, Indeterminate, got.Regime)
	assert.False(t, math.IsNaN(got.Confidence))
	assert.Zero(t, got.Features.LogR2)
}

func TestDetect_DoesNotMutateInput(t *testing.T) {
	series := []float64{5, 3, 8, 1, 9, 2, 7}
	before := append([]float64(nil), series...)
	_ = Detect(series)
	assert.Equal(t, before, series)
}
