package adapters

import (
	"testing"
)

func TestNew_PrometheusFlavors(t *testing.T) {
	tests := []struct {
		kind    string
		config  map[string]string
		wantURL string
		flavor  string
	}{
		{"prometheus", map[string]string{"query": "up", "url": "http://prometheus:9090"}, "http://prometheus:9090", FlavorPrometheus},
		{"prometheus", map[string]string{"query": "up"}, "http://localhost:9090", FlavorPrometheus},
		{"victoriametrics", map[string]string{"query": "up"}, "http://localhost:8428", FlavorVictoriaMetrics},
		{"VictoriaMetrics", map[string]string{"query": "up", "url": "http://vm:8428"}, "http://vm:8428", FlavorVictoriaMetrics},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.wantURL, func(t *testing.T) {
			adapter, err := New(tt.kind, tt.config, 60)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			p, ok := adapter.(*PrometheusAdapter)
			if !ok {
				t.Fatalf("expected *PrometheusAdapter, got %T", adapter)
			}
			if p.ServerURL != tt.wantURL {
				t.Errorf("ServerURL = %s, want %s", p.ServerURL, tt.wantURL)
			}
			if p.Flavor != tt.flavor {
				t.Errorf("Flavor = %s, want %s", p.Flavor, tt.flavor)
			}
			if p.StepSeconds != 60 {
				t.Errorf("StepSeconds = %d, want 60", p.StepSeconds)
			}
		})
	}
}

func TestNew_HTTP(t *testing.T) {
	config := map[string]string{
		"url":           "https://dispatch.example.com/api",
		"valuePath":     "data.#.v",
		"timestampPath": "data.#.t",
		"headers":       `{"X-Api-Key": "{{.Key}}"}`,
		"templateVars":  `{"Key": "k1"}`,
	}

	adapter, err := New("http", config, 3600)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h := adapter.(*HTTPAdapter)
	if h.Method != "GET" {
		t.Errorf("Method = %s, want GET", h.Method)
	}
	if h.Headers["X-Api-Key"] != "{{.Key}}" {
		t.Errorf("Headers = %v", h.Headers)
	}
	if h.TemplateVars["Key"] != "k1" {
		t.Errorf("TemplateVars = %v", h.TemplateVars)
	}
	if h.StepSeconds != 3600 {
		t.Errorf("StepSeconds = %d, want 3600", h.StepSeconds)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		config map[string]string
	}{
		{"unknown kind", "kafka", map[string]string{}},
		{"prometheus without query", "prometheus", map[string]string{"url": "http://x"}},
		{"victoriametrics without query", "victoriametrics", map[string]string{}},
		{"http without url", "http", map[string]string{"valuePath": "v", "timestampPath": "t"}},
		{"http without paths", "http", map[string]string{"url": "http://x"}},
		{"http bad headers", "http", map[string]string{"url": "http://x", "valuePath": "v", "timestampPath": "t", "headers": "{"}},
		{"http bad format", "http", map[string]string{"url": "http://x", "valuePath": "v", "timestampPath": "t", "timestampFormat": "iso"}},
		{"file without path", "file", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.kind, tt.config, 60); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_File(t *testing.T) {
	adapter, err := New("file", map[string]string{"path": "demand.csv"}, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if adapter.Name() != "file" {
		t.Errorf("Name() = %s, want file", adapter.Name())
	}
}
