package validation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/escolta/pkg/accuracy"
	"github.com/HatiCode/escolta/pkg/models"
)

func linear(n int, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + slope*float64(i)
	}
	return out
}

// oracle returns the true continuation of series.
func oracle(series []float64) ForecastFunc {
	return func(_ context.Context, train []float64, h int) ([]float64, error) {
		return append([]float64(nil), series[len(train):len(train)+h]...), nil
	}
}

func naive(_ context.Context, train []float64, h int) ([]float64, error) {
	out := make([]float64, h)
	for i := range out {
		out[i] = train[len(train)-1]
	}
	return out, nil
}

func TestRollingBacktest_PerfectForecaster(t *testing.T) {
	series := linear(20, 3)
	m := RollingBacktest(context.Background(), series, oracle(series), WithDataQuality(accuracy.DataQualityHigh))

	assert.Equal(t, 0.0, m.SMAPE)
	assert.Equal(t, 0.0, m.MAE)
	assert.Equal(t, 0.0, m.MASE)
	assert.Equal(t, accuracy.ConfidenceAlta, m.Confidence)
	assert.Equal(t, accuracy.QualityHigh, m.Quality)
}

func TestRollingBacktest_NaiveOnLinearSeries(t *testing.T) {
	series := linear(16, 2)
	r := Backtest(context.Background(), series, naive)

	assert.Equal(t, 10, r.Cuts)
	assert.Zero(t, r.Skipped)
	assert.InDelta(t, 2.0, r.Metrics.MAE, 1e-9)
	assert.Equal(t, series[6:], r.Actual)
}

func TestRollingBacktest_Sentinels(t *testing.T) {
	series := linear(12, 1)
	tests := []struct {
		name   string
		series []float64
		fn     ForecastFunc
	}{
		{name: "always errors", series: series, fn: func(context.Context, []float64, int) ([]float64, error) {
			return nil, errors.New("boom")
		}},
		{name: "always panics", series: series, fn: func(context.Context, []float64, int) ([]float64, error) {
			panic("bad model")
		}},
		{name: "too few points", series: series, fn: func(context.Context, []float64, int) ([]float64, error) {
			return []float64{}, nil
		}},
		{name: "non-finite output", series: series, fn: func(_ context.Context, _ []float64, h int) ([]float64, error) {
			return []float64{math.NaN()}, nil
		}},
		{name: "series shorter than first cut", series: linear(6, 1), fn: naive},
		{name: "nil forecaster", series: series, fn: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, accuracy.Worst(), RollingBacktest(context.Background(), tt.series, tt.fn))
		})
	}
}

func TestRollingBacktest_SkipsFailingCuts(t *testing.T) {
	series := linear(16, 2)
	flaky := func(ctx context.Context, train []float64, h int) ([]float64, error) {
		if len(train)%2 == 1 {
			return nil, errors.New("odd cut")
		}
		if len(train) == 10 {
			panic("cut 10")
		}
		return naive(ctx, train, h)
	}

	r := Backtest(context.Background(), series, flaky)

	// cuts 6..15: odd ones error, 10 panics
	assert.Equal(t, 4, r.Cuts)
	assert.Equal(t, 6, r.Skipped)
	assert.Equal(t, []float64{series[6], series[8], series[12], series[14]}, r.Actual)
	assert.InDelta(t, 2.0, r.Metrics.MAE, 1e-9)
}

func TestRollingBacktest_OrderIndependentOfConcurrency(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 50 + 10*math.Sin(float64(i)/3)
	}
	slowEarly := func(ctx context.Context, train []float64, h int) ([]float64, error) {
		time.Sleep(time.Duration(30-len(train)) * time.Millisecond / 10)
		return naive(ctx, train, h)
	}

	sequential := Backtest(context.Background(), series, slowEarly, WithConcurrency(1))
	parallel := Backtest(context.Background(), series, slowEarly, WithConcurrency(8))

	assert.Equal(t, sequential, parallel)
}

func TestRollingBacktest_TestSize(t *testing.T) {
	series := linear(12, 1)
	r := Backtest(context.Background(), series, naive, WithMinTrainSize(8), WithTestSize(2))

	// cuts 8, 9, 10
	require.Equal(t, 3, r.Cuts)
	assert.Len(t, r.Actual, 6)
	// naive misses by 1 then 2 at every cut
	assert.InDelta(t, 1.5, r.Metrics.MAE, 1e-9)
}

func TestRollingBacktest_DoesNotLeakFutureOrMutate(t *testing.T) {
	series := linear(14, 1)
	before := append([]float64(nil), series...)

	tamper := func(_ context.Context, train []float64, h int) ([]float64, error) {
		for i := range train {
			train[i] = -1
		}
		return make([]float64, h), nil
	}

	_ = RollingBacktest(context.Background(), series, tamper)
	assert.Equal(t, before, series)
}

func TestRollingBacktest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, accuracy.Worst(), RollingBacktest(ctx, linear(20, 1), naive))
}

func TestFromForecaster(t *testing.T) {
	series := linear(20, 4)
	m := RollingBacktest(context.Background(), series, FromForecaster(models.NewDrift()))

	assert.InDelta(t, 0, m.MAE, 1e-9)
	assert.InDelta(t, 0, m.SMAPE, 1e-9)
}
