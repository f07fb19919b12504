package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Remote delegates forecasting to an external HTTP service, so any model
// (Prophet, TensorFlow, a spreadsheet macro behind an API) can join an
// ensemble.
//
// Request (POST, application/json):
//
//	{"now": "2025-01-01T00:00:00Z", "history": [..], "horizon": 3}
//
// Response: "forecast" (or "values") holds one number per step. Optional
// "lower", "upper" and "confidence" fields are used when present; otherwise
// the band collapses onto the forecast and confidence defaults to 0.5.
type Remote struct {
	name     string
	endpoint string
	client   *http.Client
}

type remoteRequest struct {
	Now     string    `json:"now"`
	History []float64 `json:"history"`
	Horizon int       `json:"horizon"`
}

const defaultRemoteConfidence = 0.5

// NewRemote creates a forecaster that calls endpoint. An empty name defaults to "remote".
func NewRemote(name, endpoint string, timeout time.Duration) *Remote {
	if name == "" {
		name = "remote"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		name:     name,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// WithClient replaces the HTTP client, e.g. with one carrying mTLS settings.
func (m *Remote) WithClient(c *http.Client) *Remote {
	if c != nil {
		m.client = c
	}
	return m
}

// Name returns the model identifier.
func (m *Remote) Name() string {
	return m.name
}

// Family reports the external family.
func (m *Remote) Family() Family {
	return FamilyExternal
}

// Forecast posts history to the remote service and decodes its answer.
func (m *Remote) Forecast(ctx context.Context, history []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("remote forecast: %w", ErrInvalidHorizon)
	}
	if len(history) == 0 {
		return Result{}, fmt.Errorf("remote: history cannot be empty")
	}

	body, err := json.Marshal(remoteRequest{
		Now:     time.Now().UTC().Format(time.RFC3339),
		History: history,
		Horizon: horizon,
	})
	if err != nil {
		return Result{}, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote: http request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("remote: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(payload) > 1024 {
			payload = payload[:1024]
		}
		return Result{}, fmt.Errorf("remote: http %d: %s", resp.StatusCode, string(payload))
	}
	if !gjson.ValidBytes(payload) {
		return Result{}, fmt.Errorf("remote: malformed response")
	}

	forecast := gjson.GetBytes(payload, "forecast")
	if !forecast.Exists() {
		forecast = gjson.GetBytes(payload, "values")
	}
	values, err := floatArray(forecast, horizon)
	if err != nil {
		return Result{}, fmt.Errorf("remote: forecast: %w", err)
	}

	lower, err := floatArray(gjson.GetBytes(payload, "lower"), horizon)
	if err != nil {
		lower = clone(values)
	}
	upper, err := floatArray(gjson.GetBytes(payload, "upper"), horizon)
	if err != nil {
		upper = clone(values)
	}

	confidence := defaultRemoteConfidence
	if c := gjson.GetBytes(payload, "confidence"); c.Exists() {
		confidence = min(1, max(0, c.Float()))
	}

	return Result{
		Model:        m.name,
		Forecast:     values,
		LowerBound:   lower,
		UpperBound:   upper,
		Changepoints: []int{},
		Confidence:   confidence,
	}, nil
}

func floatArray(r gjson.Result, want int) ([]float64, error) {
	if !r.Exists() || !r.IsArray() {
		return nil, fmt.Errorf("missing array")
	}
	items := r.Array()
	if len(items) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(items))
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if item.Type != gjson.Number {
			return nil, fmt.Errorf("value %d is not a number", i)
		}
		out[i] = item.Float()
	}
	return out, nil
}
