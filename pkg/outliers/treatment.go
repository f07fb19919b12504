// Package outliers detects and treats extreme observations in a series.
//
// Detection uses the interquartile range (IQR) method: values outside
// [Q1 - k*IQR, Q3 + k*IQR] are outliers. Two treated copies of the input are
// produced: one with outliers replaced by the median, and one winsorized to the
// 5th/95th percentile range. Percentiles are read directly from the sorted
// data at index floor(n*p), with no interpolation.
//
// NaN and infinite values take no part in the quartiles; both treated copies
// replace them with the median of the finite values.
package outliers

import (
	"math"
	"sort"
)

// DefaultIQRMultiplier is the fence multiplier used when none is given.
const DefaultIQRMultiplier = 2.5

// MinSamples is the smallest input for which treatment is applied.
const MinSamples = 4

// Report describes outliers found in a series and two treated versions of it.
// CleanedData and WinsorizedData always have the input's length. NaN and
// infinite inputs are listed in NonFiniteIndices, never as outliers.
type Report struct {
	Outliers         []float64 `json:"outliers"`
	OutlierIndices   []int     `json:"outlierIndices"`
	NonFiniteIndices []int     `json:"nonFiniteIndices"`
	CleanedData      []float64 `json:"cleanedData"`
	WinsorizedData   []float64 `json:"winsorizedData"`
	LowerFence       float64   `json:"lowerFence"`
	UpperFence       float64   `json:"upperFence"`
	Median           float64   `json:"median"`
}

// Count returns the number of outliers found.
func (r Report) Count() int {
	return len(r.OutlierIndices)
}

// DetectAndTreat finds IQR outliers using the given multiplier and returns the
// cleaned and winsorized copies. A non-positive multiplier selects
// DefaultIQRMultiplier. Inputs shorter than MinSamples are returned unchanged.
func DetectAndTreat(data []float64, iqrMultiplier float64) Report {
	if iqrMultiplier <= 0 {
		iqrMultiplier = DefaultIQRMultiplier
	}

	report := Report{
		Outliers:         []float64{},
		OutlierIndices:   []int{},
		NonFiniteIndices: []int{},
		CleanedData:      clone(data),
		WinsorizedData:   clone(data),
	}

	n := len(data)
	if n < MinSamples {
		return report
	}

	sorted := make([]float64, 0, n)
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			report.NonFiniteIndices = append(report.NonFiniteIndices, i)
			continue
		}
		sorted = append(sorted, v)
	}
	if len(sorted) == 0 {
		return report
	}
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	median := medianOf(sorted)

	report.LowerFence = q1 - iqrMultiplier*iqr
	report.UpperFence = q3 + iqrMultiplier*iqr
	report.Median = median

	for _, i := range report.NonFiniteIndices {
		report.CleanedData[i] = median
		report.WinsorizedData[i] = median
	}

	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < report.LowerFence || v > report.UpperFence {
			report.Outliers = append(report.Outliers, v)
			report.OutlierIndices = append(report.OutlierIndices, i)
			report.CleanedData[i] = median
		}
	}

	p5 := percentile(sorted, 0.05)
	p95 := percentile(sorted, 0.95)
	for i, v := range report.WinsorizedData {
		report.WinsorizedData[i] = math.Min(math.Max(v, p5), p95)
	}

	return report
}

// percentile reads sorted[floor(n*p)], clamped to the last index.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func clone(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	return out
}
