package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// New creates an adapter from its kind and a flat configuration map.
//
// Supported kinds and keys:
//   - "prometheus", "victoriametrics": query (required), url
//   - "http": url, valuePath, timestampPath (required), method, body,
//     timestampFormat, headers (JSON object), templateVars (JSON object)
//   - "file": path (required)
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch strings.ToLower(kind) {
	case FlavorPrometheus:
		return newPrometheus(FlavorPrometheus, "http://localhost:9090", config, stepSeconds)
	case FlavorVictoriaMetrics:
		return newPrometheus(FlavorVictoriaMetrics, "http://localhost:8428", config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	case "file":
		if config["path"] == "" {
			return nil, fmt.Errorf("file adapter requires 'path' config")
		}
		return &FileAdapter{Path: config["path"]}, nil
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, http, or file)", kind)
	}
}

func newPrometheus(flavor, defaultURL string, config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", flavor)
	}

	url := config["url"]
	if url == "" {
		url = defaultURL
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		Flavor:      flavor,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
	}
	if a.Method == "" {
		a.Method = http.MethodGet
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
