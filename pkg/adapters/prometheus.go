package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Flavors of Prometheus-compatible servers.
const (
	FlavorPrometheus      = "prometheus"
	FlavorVictoriaMetrics = "victoriametrics"
)

// PrometheusAdapter fetches a demand series with a /api/v1/query_range call.
// VictoriaMetrics speaks the same API and is selected with Flavor.
//
// If the query returns several series, values with the same timestamp are
// summed, so `sum by (site)` style queries collapse into one demand series.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL (or MetricsQL) expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int
	// Flavor is FlavorPrometheus (default) or FlavorVictoriaMetrics.
	Flavor string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string {
	if p.Flavor == FlavorVictoriaMetrics {
		return FlavorVictoriaMetrics
	}
	return FlavorPrometheus
}

// Collect implements Adapter. It queries the last windowSeconds at
// StepSeconds resolution.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &DataFrame{}, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	step := p.StepSeconds
	if step <= 0 {
		step = 60
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DataFrame{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DataFrame{}, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read %s response: %w", p.Name(), err)
	}

	points, err := ParseRangeResponse(body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return &DataFrame{Points: points}, nil
}

// ParseRangeResponse decodes a query_range response body, summing values that
// share a timestamp across series. Points are returned oldest first.
func ParseRangeResponse(body []byte) ([]Point, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("malformed response")
	}
	if status := gjson.GetBytes(body, "status").String(); status != "success" {
		return nil, fmt.Errorf("query status: %s", status)
	}

	acc := make(map[int64]float64)
	var parseErr error
	gjson.GetBytes(body, "data.result").ForEach(func(_, series gjson.Result) bool {
		series.Get("values").ForEach(func(_, pair gjson.Result) bool {
			items := pair.Array()
			if len(items) != 2 {
				parseErr = fmt.Errorf("invalid value pair length: %d", len(items))
				return false
			}
			val, err := strconv.ParseFloat(items[1].String(), 64)
			if err != nil {
				parseErr = fmt.Errorf("parse value: %w", err)
				return false
			}
			acc[int64(items[0].Float())] += val
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	points := make([]Point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, Point{TS: time.Unix(ts, 0).UTC(), Value: v})
	}
	sortPoints(points)
	return points, nil
}
