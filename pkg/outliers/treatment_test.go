package outliers

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAndTreat_ShortInputIsUnchanged(t *testing.T) {
	for _, data := range [][]float64{nil, {1}, {1, 1000}, {5, -5, 500}} {
		r := DetectAndTreat(data, DefaultIQRMultiplier)

		assert.Empty(t, r.Outliers)
		assert.Empty(t, r.OutlierIndices)
		assert.Equal(t, len(data), len(r.CleanedData))
		assert.Equal(t, len(data), len(r.WinsorizedData))
		for i := range data {
			assert.Equal(t, data[i], r.CleanedData[i])
			assert.Equal(t, data[i], r.WinsorizedData[i])
		}
	}
}

func TestDetectAndTreat_UniformSeriesHasNoOutliers(t *testing.T) {
	data := []float64{7, 7, 7, 7, 7, 7, 7, 7}
	r := DetectAndTreat(data, DefaultIQRMultiplier)

	assert.Zero(t, r.Count())
	assert.Equal(t, data, r.CleanedData)
	assert.Equal(t, data, r.WinsorizedData)
}

func TestDetectAndTreat_ReplacesSpikeWithMedian(t *testing.T) {
	data := []float64{10, 11, 12, 10, 11, 500, 12, 10, 11, 12}
	r := DetectAndTreat(data, DefaultIQRMultiplier)

	require.Equal(t, []int{5}, r.OutlierIndices)
	assert.Equal(t, []float64{500}, r.Outliers)
	// sorted: 10 10 10 11 11 11 12 12 12 500 -> median (11+11)/2
	assert.Equal(t, 11.0, r.Median)
	assert.Equal(t, 11.0, r.CleanedData[5])
	assert.Len(t, r.CleanedData, len(data))

	for i, v := range data {
		if i != 5 {
			assert.Equal(t, v, r.CleanedData[i])
		}
	}
}

func TestDetectAndTreat_DoesNotMutateInput(t *testing.T) {
	data := []float64{3, 1, 2, 100, 4, 5}
	before := append([]float64(nil), data...)

	_ = DetectAndTreat(data, 1.5)

	assert.Equal(t, before, data)
}

func TestDetectAndTreat_WinsorizedWithinPercentiles(t *testing.T) {
	data := make([]float64, 40)
	for i := range data {
		data[i] = float64((i * 37) % 41)
	}
	data[7] = -300
	data[30] = 900

	r := DetectAndTreat(data, DefaultIQRMultiplier)

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	p5 := sorted[len(sorted)*5/100]
	p95 := sorted[len(sorted)*95/100]

	require.Len(t, r.WinsorizedData, len(data))
	for i, v := range r.WinsorizedData {
		assert.GreaterOrEqual(t, v, p5, "index %d", i)
		assert.LessOrEqual(t, v, p95, "index %d", i)
	}
}

func TestDetectAndTreat_WinsorizationIsFixedPoint(t *testing.T) {
	data := []float64{1, 50, 52, 49, 51, 48, 53, 47, 55, 46, 54, 45, 56, 44, 57, 43, 58, 42, 59, 400}

	first := DetectAndTreat(data, DefaultIQRMultiplier)
	second := DetectAndTreat(first.WinsorizedData, DefaultIQRMultiplier)

	assert.Equal(t, first.WinsorizedData, second.WinsorizedData)
}

func TestDetectAndTreat_DefaultMultiplier(t *testing.T) {
	data := []float64{10, 11, 12, 10, 11, 30, 12, 10}

	assert.Equal(t, DetectAndTreat(data, DefaultIQRMultiplier), DetectAndTreat(data, 0))
}

func TestDetectAndTreat_NonFiniteValues(t *testing.T) {
	data := []float64{1, 2, 3, math.NaN(), 100, 5}
	r := DetectAndTreat(data, DefaultIQRMultiplier)

	// finite sorted: 1 2 3 5 100 -> Q1 2, Q3 5, median 3, p5 1, p95 100
	assert.Equal(t, []int{3}, r.NonFiniteIndices)
	assert.Equal(t, []int{4}, r.OutlierIndices)
	assert.Equal(t, []float64{100}, r.Outliers)
	assert.Equal(t, 3.0, r.Median)
	assert.Equal(t, []float64{1, 2, 3, 3, 3, 5}, r.CleanedData)
	assert.Equal(t, []float64{1, 2, 3, 3, 100, 5}, r.WinsorizedData)

	inf := DetectAndTreat([]float64{10, math.Inf(1), 11, 12, math.Inf(-1), 10}, DefaultIQRMultiplier)
	assert.Equal(t, []int{1, 4}, inf.NonFiniteIndices)
	assert.Empty(t, inf.OutlierIndices)
	for i, v := range inf.CleanedData {
		assert.False(t, math.IsInf(v, 0), "cleaned[%d] = %v", i, v)
		assert.False(t, math.IsInf(inf.WinsorizedData[i], 0), "winsorized[%d] = %v", i, inf.WinsorizedData[i])
	}
}

func TestDetectAndTreat_AllNaN(t *testing.T) {
	data := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	r := DetectAndTreat(data, DefaultIQRMultiplier)

	assert.Equal(t, []int{0, 1, 2, 3}, r.NonFiniteIndices)
	assert.Zero(t, r.Count())
	assert.Len(t, r.CleanedData, 4)
}
