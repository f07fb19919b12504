package models

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemote_Name(t *testing.T) {
	if got := NewRemote("", "http://localhost:8082/predict", 0).Name(); got != "remote" {
		t.Errorf("expected name 'remote', got %q", got)
	}
	if got := NewRemote("pricing-lstm", "http://localhost:8082/predict", 0).Name(); got != "pricing-lstm" {
		t.Errorf("expected name 'pricing-lstm', got %q", got)
	}
}

func TestRemote_Forecast_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Horizon != 3 {
			t.Errorf("expected horizon 3, got %d", req.Horizon)
		}
		if len(req.History) != 4 {
			t.Errorf("expected 4 history points, got %d", len(req.History))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"forecast":[110,120,130],"lower":[100,105,110],"upper":[120,135,150],"confidence":0.8}`))
	}))
	defer server.Close()

	m := NewRemote("ext", server.URL, time.Second)
	res, err := m.Forecast(context.Background(), []float64{80, 90, 100, 105}, 3)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	if res.Model != "ext" {
		t.Errorf("expected model 'ext', got %q", res.Model)
	}
	if res.Forecast[2] != 130 || res.LowerBound[1] != 105 || res.UpperBound[2] != 150 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %f", res.Confidence)
	}
}

func TestRemote_Forecast_ValuesAliasAndDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metric":"demand","values":[5,6]}`))
	}))
	defer server.Close()

	res, err := NewRemote("", server.URL, time.Second).Forecast(context.Background(), []float64{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if res.Forecast[0] != 5 || res.Forecast[1] != 6 {
		t.Errorf("forecast = %v, want [5 6]", res.Forecast)
	}
	if res.LowerBound[0] != 5 || res.UpperBound[1] != 6 {
		t.Errorf("bounds = %v/%v, want collapsed onto forecast", res.LowerBound, res.UpperBound)
	}
	if res.Confidence != defaultRemoteConfidence {
		t.Errorf("confidence = %f, want %f", res.Confidence, defaultRemoteConfidence)
	}
}

func TestRemote_Forecast_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		horizon int
	}{
		{name: "http error", status: http.StatusInternalServerError, body: "internal server error", horizon: 2},
		{name: "malformed json", status: http.StatusOK, body: "{invalid json", horizon: 2},
		{name: "wrong count", status: http.StatusOK, body: `{"forecast":[1,2,3]}`, horizon: 2},
		{name: "non numeric", status: http.StatusOK, body: `{"forecast":[1,"x"]}`, horizon: 2},
		{name: "missing forecast", status: http.StatusOK, body: `{"lower":[1,2]}`, horizon: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := NewRemote("", server.URL, time.Second).Forecast(context.Background(), []float64{1, 2}, tt.horizon); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRemote_Forecast_EmptyHistory(t *testing.T) {
	if _, err := NewRemote("", "http://localhost:8082/predict", 0).Forecast(context.Background(), nil, 2); err == nil {
		t.Error("expected error for empty history")
	}
}

func TestRemote_Forecast_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"forecast":[1]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := NewRemote("", server.URL, time.Second).Forecast(ctx, []float64{1}, 1); err == nil {
		t.Error("expected error for context timeout")
	}
}
