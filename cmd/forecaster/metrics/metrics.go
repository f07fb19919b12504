// Package metrics provides Prometheus metrics instrumentation for the forecaster.
//
// Metrics exposed:
//   - escolta_adapter_collect_seconds: Histogram of series collection duration
//   - escolta_ensemble_combine_seconds: Histogram of ensemble duration by source
//   - escolta_capacity_compute_seconds: Histogram of crew planning duration
//   - escolta_forecast_age_seconds: Gauge of current snapshot age
//   - escolta_planned_crews: Gauge of crews planned for the next step
//   - escolta_predicted_demand: Gauge of the next-step demand forecast
//   - escolta_ensemble_confidence: Gauge of the combined forecast confidence
//   - escolta_ensemble_weight: Gauge of each member's weight
//   - escolta_regime: Gauge set to 1 for the detected growth regime
//   - escolta_forecast_cache_total: Counter of ad-hoc forecast cache lookups
//   - escolta_errors_total: Counter of errors by component and reason
//
// All metrics carry the series label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Combine sources.
const (
	SourceRefresh = "refresh"
	SourceHTTP    = "http"
	SourceGRPC    = "grpc"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	AdapterCollectSeconds  prometheus.Histogram
	CombineSeconds         *prometheus.HistogramVec
	CapacityComputeSeconds prometheus.Histogram
	ForecastAgeSeconds     prometheus.Gauge
	PlannedCrews           prometheus.Gauge
	PredictedDemand        prometheus.Gauge
	EnsembleConfidence     prometheus.Gauge
	EnsembleWeight         *prometheus.GaugeVec
	Regime                 *prometheus.GaugeVec
	CacheTotal             *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(series string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"series": series}

	return &Metrics{
		AdapterCollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "escolta_adapter_collect_seconds",
			Help:        "Time spent collecting the demand series from the adapter",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		CombineSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "escolta_ensemble_combine_seconds",
			Help:        "Time spent forecasting, backtesting and blending ensemble members",
			ConstLabels: labels,
			Buckets:     []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		CapacityComputeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "escolta_capacity_compute_seconds",
			Help:        "Time spent computing planned crews",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		ForecastAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "escolta_forecast_age_seconds",
			Help:        "Age of the current forecast snapshot in seconds",
			ConstLabels: labels,
		}),

		PlannedCrews: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "escolta_planned_crews",
			Help:        "Crews planned for the next step",
			ConstLabels: labels,
		}),

		PredictedDemand: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "escolta_predicted_demand",
			Help:        "Forecast demand for the next step",
			ConstLabels: labels,
		}),

		EnsembleConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "escolta_ensemble_confidence",
			Help:        "Confidence of the latest combined forecast (0-1)",
			ConstLabels: labels,
		}),

		EnsembleWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "escolta_ensemble_weight",
			Help:        "Weight of each forecaster in the latest combined forecast",
			ConstLabels: labels,
		}, []string{"model"}),

		Regime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "escolta_regime",
			Help:        "Detected growth regime of the series (1 for the current regime)",
			ConstLabels: labels,
		}, []string{"regime"}),

		CacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "escolta_forecast_cache_total",
			Help:        "Ad-hoc forecast cache lookups by result",
			ConstLabels: labels,
		}, []string{"result"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "escolta_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting the series.
func (m *Metrics) RecordCollect(seconds float64) {
	m.AdapterCollectSeconds.Observe(seconds)
}

// RecordCombine records the time spent running the ensemble for source.
func (m *Metrics) RecordCombine(source string, seconds float64) {
	m.CombineSeconds.WithLabelValues(source).Observe(seconds)
}

// RecordCapacity records the time spent computing crews.
func (m *Metrics) RecordCapacity(seconds float64) {
	m.CapacityComputeSeconds.Observe(seconds)
}

// SetForecastAge sets the current forecast age.
func (m *Metrics) SetForecastAge(seconds float64) {
	m.ForecastAgeSeconds.Set(seconds)
}

// SetPlannedCrews sets the crews planned for the next step.
func (m *Metrics) SetPlannedCrews(crews int) {
	m.PlannedCrews.Set(float64(crews))
}

// SetPredictedDemand sets the next-step forecast.
func (m *Metrics) SetPredictedDemand(value float64) {
	m.PredictedDemand.Set(value)
}

// SetEnsemble publishes confidence, member weights and regime of a combined
// forecast. Members absent from weights are removed.
func (m *Metrics) SetEnsemble(confidence float64, weights map[string]float64, regime string) {
	m.EnsembleConfidence.Set(confidence)

	m.EnsembleWeight.Reset()
	for model, w := range weights {
		m.EnsembleWeight.WithLabelValues(model).Set(w)
	}

	m.Regime.Reset()
	m.Regime.WithLabelValues(regime).Set(1)
}

// RecordCache counts a cache hit or miss.
func (m *Metrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
