package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const twoSeriesResponse = `{
    "status": "success",
    "data": {
        "resultType": "matrix",
        "result": [
            {"metric": {"site": "north"}, "values": [[1700000120, "3"], [1700000000, "1"], [1700000060, "2"]]},
            {"metric": {"site": "south"}, "values": [[1700000000, "10"], [1700000060, "20"]]}
        ]
    }
}`

func TestPrometheusAdapter_SumsSeries(t *testing.T) {
	var gotPath, gotQuery, gotStep string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotStep = r.URL.Query().Get("step")
		fmt.Fprint(w, twoSeriesResponse)
	}))
	defer server.Close()

	a := &PrometheusAdapter{ServerURL: server.URL, Query: "sum by (site) (escort_requests)", StepSeconds: 60}
	df, err := a.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if gotPath != "/api/v1/query_range" {
		t.Errorf("path = %s", gotPath)
	}
	if gotQuery != "sum by (site) (escort_requests)" {
		t.Errorf("query = %s", gotQuery)
	}
	if gotStep != "60" {
		t.Errorf("step = %s, want 60", gotStep)
	}

	want := []float64{11, 22, 3}
	got := df.Values()
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %f, want %f", i, got[i], want[i])
		}
	}
	for i := 1; i < df.Len(); i++ {
		if !df.Points[i].TS.After(df.Points[i-1].TS) {
			t.Errorf("points not ordered at %d", i)
		}
	}
}

func TestPrometheusAdapter_Name(t *testing.T) {
	if got := (&PrometheusAdapter{}).Name(); got != "prometheus" {
		t.Errorf("Name() = %q, want prometheus", got)
	}
	if got := (&PrometheusAdapter{Flavor: FlavorVictoriaMetrics}).Name(); got != "victoriametrics" {
		t.Errorf("Name() = %q, want victoriametrics", got)
	}
}

func TestPrometheusAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http status", http.StatusBadGateway, ""},
		{"query error", http.StatusOK, `{"status": "error", "error": "bad query"}`},
		{"malformed", http.StatusOK, `{"status": "success", "data": `},
		{"bad value", http.StatusOK, `{"status": "success", "data": {"result": [{"values": [[1, "x"]]}]}}`},
		{"bad pair", http.StatusOK, `{"status": "success", "data": {"result": [{"values": [[1]]}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			a := &PrometheusAdapter{ServerURL: server.URL, Query: "up"}
			if _, err := a.Collect(context.Background(), 60); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPrometheusAdapter_RequiresQuery(t *testing.T) {
	a := &PrometheusAdapter{ServerURL: "http://localhost:9090"}
	if _, err := a.Collect(context.Background(), 60); err == nil {
		t.Error("expected error without query")
	}
}

func TestParseRangeResponse_Empty(t *testing.T) {
	points, err := ParseRangeResponse([]byte(`{"status": "success", "data": {"result": []}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("got %d points, want 0", len(points))
	}
}
