package accuracy

import (
	"fmt"
	"sort"
)

// Confidence is the coarse trust label attached to a forecast.
type Confidence string

const (
	ConfidenceAlta  Confidence = "Alta"
	ConfidenceMedia Confidence = "Media"
	ConfidenceBaja  Confidence = "Baja"
)

// Quality grades forecast error independently of input data quality.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// DataQuality describes how much the input history can be trusted.
type DataQuality string

const (
	DataQualityHigh   DataQuality = "high"
	DataQualityMedium DataQuality = "medium"
	DataQualityLow    DataQuality = "low"
)

// ParseDataQuality accepts "high", "medium" or "low".
func ParseDataQuality(s string) (DataQuality, error) {
	switch DataQuality(s) {
	case DataQualityHigh, DataQualityMedium, DataQualityLow:
		return DataQuality(s), nil
	default:
		return "", fmt.Errorf("invalid data quality %q (must be high, medium, or low)", s)
	}
}

// Classify maps error levels to a confidence label and a quality grade.
// Thresholds are strict (<) and fixed:
//
//	Alta:   smape < 15 && mase < 1.0 && dq == high
//	Media:  smape < 25 && mase < 1.5 && dq != low
//	high:   smape < 20 && mase < 1.2
//	medium: smape < 40 && mase < 2.0
func Classify(smape, mase float64, dq DataQuality) (Confidence, Quality) {
	var confidence Confidence
	switch {
	case smape < 15 && mase < 1.0 && dq == DataQualityHigh:
		confidence = ConfidenceAlta
	case smape < 25 && mase < 1.5 && dq != DataQualityLow:
		confidence = ConfidenceMedia
	default:
		confidence = ConfidenceBaja
	}

	var quality Quality
	switch {
	case smape < 20 && mase < 1.2:
		quality = QualityHigh
	case smape < 40 && mase < 2.0:
		quality = QualityMedium
	default:
		quality = QualityLow
	}

	return confidence, quality
}

// AssessDataQuality grades a history by length and share of IQR outliers
// (1.5×IQR fences). Long, clean histories are high; at least a year of monthly
// points is medium; anything shorter is low.
func AssessDataQuality(series []float64) DataQuality {
	n := len(series)
	if n < 12 {
		return DataQualityLow
	}

	sorted := make([]float64, n)
	copy(sorted, series)
	sort.Float64s(sorted)
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1

	outliers := 0
	for _, v := range series {
		if v < q1-1.5*iqr || v > q3+1.5*iqr {
			outliers++
		}
	}

	if n >= 24 && float64(outliers)/float64(n) <= 0.05 {
		return DataQualityHigh
	}
	return DataQualityMedium
}
