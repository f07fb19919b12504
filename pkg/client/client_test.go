package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/storage"
)

func TestClient_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast/current" {
			t.Errorf("path = %s, want /forecast/current", r.URL.Path)
		}
		switch r.URL.Query().Get("series") {
		case "gate-a":
			_ = json.NewEncoder(w).Encode(storage.Snapshot{Series: "gate-a", StepSeconds: 60, Crews: []int{2, 3}})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no forecast"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil, nil)

	snap, err := c.Current(context.Background(), "gate-a")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snap.Series != "gate-a" || len(snap.Crews) != 2 {
		t.Errorf("Current() = %+v", snap)
	}

	if _, err := c.Current(context.Background(), "unknown"); err != ErrNotFound {
		t.Errorf("Current(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestClient_Series(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"series":["gate-a","gate-b"]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, nil, nil).Series(context.Background())
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if len(got) != 2 || got[0] != "gate-a" || got[1] != "gate-b" {
		t.Errorf("Series() = %v", got)
	}
}

func TestClient_Forecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req ForecastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Horizon != 2 || len(req.Series) != 3 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ensemble.Result{
			Result:  models.Result{Model: ensemble.ModelName, Forecast: []float64{4, 5}},
			Weights: ensemble.Weights{"drift": 1},
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, nil, nil).Forecast(context.Background(), ForecastRequest{Series: []float64{1, 2, 3}, Horizon: 2})
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if res.Model != ensemble.ModelName || len(res.Forecast) != 2 || res.Weights["drift"] != 1 {
		t.Errorf("Forecast() = %+v", res)
	}
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"no viable forecaster"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, nil).Forecast(context.Background(), ForecastRequest{Series: []float64{1}, Horizon: 1})
	if err == nil || err.Error() != "forecaster returned status 422: no viable forecaster" {
		t.Errorf("Forecast() error = %v", err)
	}
}

func TestCrewsAtLeadTime(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *storage.Snapshot
		leadTime time.Duration
		want     int
	}{
		{"nil snapshot", nil, time.Minute, 1},
		{"no plan", &storage.Snapshot{StepSeconds: 60}, time.Minute, 1},
		{"zero lead uses first step", &storage.Snapshot{StepSeconds: 60, Crews: []int{2, 9}}, 0, 2},
		{"peak inside window", &storage.Snapshot{StepSeconds: 60, Crews: []int{2, 5, 3, 8}}, 2 * time.Minute, 5},
		{"window past plan end", &storage.Snapshot{StepSeconds: 60, Crews: []int{2, 5, 3, 8}}, time.Hour, 8},
		{"partial step truncates", &storage.Snapshot{StepSeconds: 60, Crews: []int{1, 4}}, 90 * time.Second, 4},
		{"zero step", &storage.Snapshot{Crews: []int{3, 7}}, time.Hour, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrewsAtLeadTime(tt.snapshot, tt.leadTime); got != tt.want {
				t.Errorf("CrewsAtLeadTime() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &storage.Snapshot{GeneratedAt: now.Add(-11 * time.Minute)}

	if !IsStale(s, 5*time.Minute, now) {
		t.Error("11m old snapshot with 5m lead time should be stale")
	}
	if IsStale(s, 6*time.Minute, now) {
		t.Error("11m old snapshot with 6m lead time should be fresh")
	}
}
