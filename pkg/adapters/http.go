package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp formats understood by HTTPAdapter.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// HTTPAdapter calls a JSON API (a booking system, a dispatch backend) and
// extracts the demand series with gjson paths.
//
// Body and header values are text/template strings with these variables:
//
//	{{.WindowSeconds}} {{.Start}} {{.End}} {{.Step}} {{.StartRFC3339}} {{.EndRFC3339}}
//
// plus anything in TemplateVars. Example:
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://dispatch.example.com/api/requests",
//	    Method:        "POST",
//	    Headers:       map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    Body:          `{"site": "north", "from": {{.Start}}, "to": {{.End}}}`,
//	    ValuePath:     "data.#.requests",
//	    TimestampPath: "data.#.day",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call (required).
	URL string
	// Method is the HTTP method. Defaults to GET.
	Method string
	// Headers are sent with every request; values are templates.
	Headers map[string]string
	// Body is the request body template (for POST/PUT).
	Body string
	// ValuePath is the gjson path of the values, e.g. "data.#.value".
	ValuePath string
	// TimestampPath is the gjson path of the timestamps. It must yield as many
	// elements as ValuePath.
	TimestampPath string
	// TimestampFormat is TimestampRFC3339 (default), TimestampUnix or TimestampUnixMilli.
	TimestampFormat string
	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
	// TemplateVars are extra template variables such as tokens.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = 60
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	vars := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, vars)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	points, err := h.extract(payload)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Points: points}, nil
}

func (h *HTTPAdapter) extract(payload []byte) ([]Point, error) {
	values := gjson.GetBytes(payload, h.ValuePath)
	timestamps := gjson.GetBytes(payload, h.TimestampPath)

	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	if !timestamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray := values.Array()
	tsArray := timestamps.Array()
	if len(valArray) != len(tsArray) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	points := make([]Point, 0, len(valArray))
	for i := range valArray {
		ts, err := parseTimestamp(tsArray[i], h.TimestampFormat)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		points = append(points, Point{TS: ts, Value: valArray[i].Float()})
	}
	sortPoints(points)
	return points, nil
}

// ValidateConfig checks the required fields and the timestamp format.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" || h.TimestampPath == "" {
		return errors.New("valuePath and timestampPath are required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampUnix, TimestampUnixMilli:
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}

func parseTimestamp(value gjson.Result, format string) (time.Time, error) {
	switch format {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, value.String())
	case TimestampUnix:
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
