package models

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestDrift_Name(t *testing.T) {
	m := NewDrift()
	if m.Name() != "drift" {
		t.Errorf("expected name 'drift', got %q", m.Name())
	}
	if FamilyOf(m) != FamilyTrend {
		t.Errorf("FamilyOf() = %q, want %q", FamilyOf(m), FamilyTrend)
	}
}

func TestDrift_Forecast(t *testing.T) {
	tests := []struct {
		name     string
		history  []float64
		horizon  int
		want     []float64
		wantConf float64
	}{
		{
			name:     "flat history stays flat",
			history:  constantSeries(8, 100),
			horizon:  3,
			want:     []float64{100, 100, 100},
			wantConf: 1,
		},
		{
			name:     "linear growth continues",
			history:  linearSeries(10, 0, 2),
			horizon:  2,
			want:     []float64{20, 22},
			wantConf: 1,
		},
		{
			name:     "decline clamps at zero",
			history:  []float64{10, 8, 6, 4, 2},
			horizon:  3,
			want:     []float64{0, 0, 0},
			wantConf: 1,
		},
		{
			name:     "single point",
			history:  []float64{150},
			horizon:  2,
			want:     []float64{150, 150},
			wantConf: fallbackConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewDrift().Forecast(context.Background(), tt.history, tt.horizon)
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			if len(res.Forecast) != tt.horizon {
				t.Fatalf("len(forecast) = %d, want %d", len(res.Forecast), tt.horizon)
			}
			for i, want := range tt.want {
				if math.Abs(res.Forecast[i]-want) > 1e-9 {
					t.Errorf("forecast[%d] = %f, want %f", i, res.Forecast[i], want)
				}
			}
			if math.Abs(res.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence = %f, want %f", res.Confidence, tt.wantConf)
			}
		})
	}
}

func TestDrift_Momentum(t *testing.T) {
	// quadratic growth: recent slope is steeper than the older one
	history := make([]float64, 20)
	for i := range history {
		history[i] = float64(i * i)
	}

	res, err := NewDrift().Forecast(context.Background(), history, 3)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	linearOnly := history[19] + trailingSlope(history, defaultDriftWindow)
	if res.Forecast[0] <= linearOnly {
		t.Errorf("forecast[0] = %f, want above slope-only %f", res.Forecast[0], linearOnly)
	}
	for i := 1; i < len(res.Forecast); i++ {
		if res.Forecast[i] <= res.Forecast[i-1] {
			t.Errorf("forecast not increasing at %d: %v", i, res.Forecast)
		}
	}
}

func TestDrift_Errors(t *testing.T) {
	m := NewDrift()

	if _, err := m.Forecast(context.Background(), nil, 3); err == nil {
		t.Error("expected error for empty history")
	}
	if _, err := m.Forecast(context.Background(), []float64{1, 2}, 0); !errors.Is(err, ErrInvalidHorizon) {
		t.Errorf("error = %v, want ErrInvalidHorizon", err)
	}
}

func TestDrift_BoundsContainForecast(t *testing.T) {
	history := []float64{12, 15, 11, 18, 16, 21, 19, 24, 22, 27}
	res, err := NewDrift().Forecast(context.Background(), history, 4)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	for i := range res.Forecast {
		if res.LowerBound[i] > res.Forecast[i] || res.UpperBound[i] < res.Forecast[i] {
			t.Errorf("step %d: [%f, %f] does not contain %f", i, res.LowerBound[i], res.UpperBound[i], res.Forecast[i])
		}
		if res.UpperBound[i] == res.LowerBound[i] {
			t.Errorf("step %d: zero-width interval on noisy history", i)
		}
	}
	if res.Confidence <= 0 || res.Confidence >= 1 {
		t.Errorf("confidence = %f, want strictly between 0 and 1", res.Confidence)
	}
}
