package ensemble

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/escolta/pkg/accuracy"
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/regime"
)

// offsetModel forecasts the last observed value plus a fixed offset.
type offsetModel struct {
	name       string
	offset     float64
	band       float64
	confidence float64
}

func (m offsetModel) Name() string { return m.name }

func (m offsetModel) Forecast(_ context.Context, history []float64, horizon int) (models.Result, error) {
	if len(history) == 0 {
		return models.Result{}, errors.New("empty history")
	}
	last := history[len(history)-1] + m.offset
	res := models.Result{Model: m.name, Confidence: m.confidence}
	for range horizon {
		res.Forecast = append(res.Forecast, last)
		res.LowerBound = append(res.LowerBound, last-m.band)
		res.UpperBound = append(res.UpperBound, last+m.band)
	}
	return res, nil
}

type failingModel struct{ name string }

func (m failingModel) Name() string { return m.name }

func (m failingModel) Forecast(context.Context, []float64, int) (models.Result, error) {
	return models.Result{}, errors.New("boom")
}

// shortModel returns one point fewer than requested.
type shortModel struct{}

func (shortModel) Name() string { return "short" }

func (shortModel) Forecast(_ context.Context, _ []float64, horizon int) (models.Result, error) {
	v := make([]float64, horizon-1)
	return models.Result{Forecast: v, LowerBound: v, UpperBound: v}, nil
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]models.Forecaster{offsetModel{name: "a"}, offsetModel{name: "a"}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = New([]models.Forecaster{offsetModel{name: "a"}, nil})
	assert.Error(t, err)

	c, err := New([]models.Forecaster{offsetModel{name: "a"}, offsetModel{name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Members())
}

func TestCombine_InvalidHorizon(t *testing.T) {
	c, err := New([]models.Forecaster{offsetModel{name: "a"}})
	require.NoError(t, err)

	_, err = c.Combine(context.Background(), flat(12, 10), 0)
	assert.ErrorIs(t, err, models.ErrInvalidHorizon)
}

func TestCombine_NoViableForecaster(t *testing.T) {
	c, err := New([]models.Forecaster{failingModel{name: "x"}, shortModel{}})
	require.NoError(t, err)

	_, err = c.Combine(context.Background(), flat(12, 10), 3)
	assert.ErrorIs(t, err, ErrNoViableForecaster)
}

func TestCombine_SingleViableReturnedVerbatim(t *testing.T) {
	only := offsetModel{name: "only", offset: 1, band: 2, confidence: 0.7}
	c, err := New([]models.Forecaster{failingModel{name: "x"}, only, shortModel{}})
	require.NoError(t, err)

	series := flat(12, 10)
	got, err := c.Combine(context.Background(), series, 3)
	require.NoError(t, err)

	want, err := only.Forecast(context.Background(), series, 3)
	require.NoError(t, err)

	assert.Equal(t, want, got.Result)
	assert.Equal(t, Weights{"only": 1}, got.Weights)
	assert.Len(t, got.Members, 1)
	assert.Contains(t, got.Scores, "only")
}

func TestCombine_WeightsFollowBacktestSkill(t *testing.T) {
	good := offsetModel{name: "good", band: 1, confidence: 0.9}
	bad := offsetModel{name: "bad", offset: 5, band: 3, confidence: 0.4}
	c, err := New([]models.Forecaster{good, bad})
	require.NoError(t, err)

	got, err := c.Combine(context.Background(), flat(12, 10), 2)
	require.NoError(t, err)

	// good backtests perfectly (skill 1); bad has sMAPE 40 and MASE 5.
	badSkill := 1 / (1 + 0.4 + 0.5)
	wGood := 1 / (1 + badSkill)
	wBad := badSkill / (1 + badSkill)

	assert.Equal(t, ModelName, got.Model)
	assert.Equal(t, regime.Stable, got.Regime.Regime)
	assert.InDelta(t, wGood, got.Weights["good"], 1e-9)
	assert.InDelta(t, wBad, got.Weights["bad"], 1e-9)
	assert.InDelta(t, 1.0, got.Weights["good"]+got.Weights["bad"], 1e-12)

	for p := range 2 {
		assert.InDelta(t, 10*wGood+15*wBad, got.Forecast[p], 1e-9)
		// union of [9, 11] and [12, 18]
		assert.InDelta(t, 9, got.LowerBound[p], 1e-9)
		assert.InDelta(t, 18, got.UpperBound[p], 1e-9)
	}
	assert.InDelta(t, 0.9*wGood+0.4*wBad, got.Confidence, 1e-9)

	assert.InDelta(t, 0, got.Scores["good"].SMAPE, 1e-9)
	assert.InDelta(t, 40, got.Scores["bad"].SMAPE, 1e-9)
	assert.Equal(t, []string{"good", "bad"}, []string{got.Members[0].Model, got.Members[1].Model})
}

func TestCombine_CleaningRemovesSpike(t *testing.T) {
	series := flat(20, 10)
	series[19] = 500

	c, err := New([]models.Forecaster{offsetModel{name: "naive"}}, WithCleaning(0))
	require.NoError(t, err)

	got, err := c.Combine(context.Background(), series, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Cleaned)
	assert.InDelta(t, 10, got.Forecast[0], 1e-9)
	assert.Equal(t, 500.0, series[19], "input must not be modified")

	raw, err := New([]models.Forecaster{offsetModel{name: "naive"}})
	require.NoError(t, err)
	got, err = raw.Combine(context.Background(), series, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cleaned)
	assert.InDelta(t, 500, got.Forecast[0], 1e-9)
}

func TestCombine_CancelledContext(t *testing.T) {
	c, err := New([]models.Forecaster{offsetModel{name: "a"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Combine(ctx, flat(12, 10), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCombine_RealModels(t *testing.T) {
	arima, err := models.NewARIMA(1, 1, 1)
	require.NoError(t, err)
	members := []models.Forecaster{
		models.NewProphet(models.DefaultProphetConfig()),
		models.NewDrift(),
		arima,
	}

	c, err := New(members, WithConcurrency(2))
	require.NoError(t, err)

	got, err := c.Combine(context.Background(), flat(30, 10), 3)
	require.NoError(t, err)

	require.Len(t, got.Forecast, 3)
	sum := 0.0
	for name, w := range got.Weights {
		assert.GreaterOrEqual(t, w, 0.0, name)
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-9)
	for p, v := range got.Forecast {
		assert.InDelta(t, 10, v, 1e-6, "step %d", p)
		assert.LessOrEqual(t, got.LowerBound[p], v)
		assert.GreaterOrEqual(t, got.UpperBound[p], v)
	}
	assert.False(t, math.IsNaN(got.Confidence))
	assert.Equal(t, accuracy.DataQualityHigh, got.DataQuality)
}

func TestAffinity(t *testing.T) {
	confident := func(r regime.Regime) regime.Label { return regime.Label{Regime: r, Confidence: 0.9} }

	tests := []struct {
		name   string
		label  regime.Label
		family models.Family
		want   float64
	}{
		{"stable favours autoregressive", confident(regime.Stable), models.FamilyAutoregressive, 1.1},
		{"stable penalises trend", confident(regime.Stable), models.FamilyTrend, 0.8},
		{"exponential favours trend", confident(regime.ExponentialGrowth), models.FamilyTrend, 1.3},
		{"decelerating favours decomposition", confident(regime.Decelerating), models.FamilyDecomposition, 1.2},
		{"external is neutral", confident(regime.LinearGrowth), models.FamilyExternal, 1.0},
		{"low confidence is neutral", regime.Label{Regime: regime.ExponentialGrowth, Confidence: 0.4}, models.FamilyTrend, 1.0},
		{"indeterminate is neutral", regime.Label{Regime: regime.Indeterminate, Confidence: 1}, models.FamilyTrend, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Affinity(tt.label, tt.family); got != tt.want {
				t.Errorf("Affinity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkill(t *testing.T) {
	assert.InDelta(t, 1, Skill(accuracy.Metrics{}), 1e-12)
	assert.InDelta(t, 1.0/3, Skill(accuracy.Worst()), 1e-12)
	// MASE is capped at the sentinel.
	assert.InDelta(t, Skill(accuracy.Metrics{MASE: 10}), Skill(accuracy.Metrics{MASE: 50}), 1e-12)
}
