// Package client talks to the forecaster HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/storage"
)

// ErrNotFound is returned when the forecaster has no snapshot for a series.
var ErrNotFound = errors.New("forecast not found")

// ForecastRequest is the body of POST /forecast.
type ForecastRequest struct {
	Series  []float64 `json:"series"`
	Horizon int       `json:"horizon"`
}

// Client fetches snapshots and on-demand forecasts from a forecaster.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the forecaster at baseURL. A nil httpClient uses a
// plain client with a 10s timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Current returns the latest snapshot for series.
func (c *Client) Current(ctx context.Context, series string) (*storage.Snapshot, error) {
	u := fmt.Sprintf("%s/forecast/current?series=%s", c.baseURL, url.QueryEscape(series))

	var snapshot storage.Snapshot
	if err := c.do(ctx, http.MethodGet, u, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Series lists the series the forecaster has snapshots for.
func (c *Client) Series(ctx context.Context) ([]string, error) {
	var body struct {
		Series []string `json:"series"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/forecast/series", nil, &body); err != nil {
		return nil, err
	}
	return body.Series, nil
}

// Forecast runs the ensemble on an ad-hoc series.
func (c *Client) Forecast(ctx context.Context, req ForecastRequest) (ensemble.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ensemble.Result{}, fmt.Errorf("failed to encode request: %w", err)
	}
	var res ensemble.Result
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/forecast", payload, &res); err != nil {
		return ensemble.Result{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach forecaster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("forecaster returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("forecaster returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CrewsAtLeadTime returns the largest planned crew count over the window
// [now, now+leadTime], so a shift is staffed ahead of an upcoming peak
// without releasing crews still needed for current demand. A snapshot
// without a plan yields 1.
func CrewsAtLeadTime(s *storage.Snapshot, leadTime time.Duration) int {
	if s == nil || len(s.Crews) == 0 {
		return 1
	}

	leadSteps := 0
	if s.StepSeconds > 0 {
		leadSteps = int(leadTime / (time.Duration(s.StepSeconds) * time.Second))
	}
	leadSteps = max(0, min(leadSteps, len(s.Crews)-1))

	peak := s.Crews[0]
	for _, c := range s.Crews[1 : leadSteps+1] {
		peak = max(peak, c)
	}
	return peak
}

// IsStale reports whether s is older than twice the lead time.
func IsStale(s *storage.Snapshot, leadTime time.Duration, now time.Time) bool {
	return s.Age(now) > 2*leadTime
}
