// Package adapters collects demand series for the forecasting engine.
//
// A demand series is an ordered list of timestamped observations, for
// example guard-hours requested per day at a site or escort requests per
// hour in a region. Adapters pull the raw points from a source and return
// them as a [DataFrame]; everything else (cleaning, forecasting, planning)
// happens above this package.
//
// Available adapters:
//   - PrometheusAdapter: range queries against Prometheus or VictoriaMetrics
//   - HTTPAdapter:       any JSON API, points extracted with gjson paths
//   - FileAdapter:       JSON or CSV files, used by the CLI
package adapters

import (
	"context"
	"sort"
	"time"
)

// Point is a single observation of a demand series.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// DataFrame holds the points returned by one Collect call, oldest first.
type DataFrame struct {
	Points []Point `json:"points"`
}

// Values returns the observed values in timestamp order.
func (df *DataFrame) Values() []float64 {
	if df == nil {
		return []float64{}
	}
	out := make([]float64, len(df.Points))
	for i, p := range df.Points {
		out[i] = p.Value
	}
	return out
}

// Len returns the number of points.
func (df *DataFrame) Len() int {
	if df == nil {
		return 0
	}
	return len(df.Points)
}

// Last returns the most recent point, or false when the frame is empty.
func (df *DataFrame) Last() (Point, bool) {
	if df.Len() == 0 {
		return Point{}, false
	}
	return df.Points[len(df.Points)-1], true
}

// FillGaps aligns points to stepSec buckets and carries the previous value
// forward into empty buckets so that the series is evenly spaced. Points
// falling into the same bucket are summed. Frames without timestamps (as read
// from a plain value list) are returned unchanged.
func (df *DataFrame) FillGaps(stepSec int) *DataFrame {
	if df.Len() < 2 || stepSec <= 0 || df.Points[0].TS.IsZero() {
		return df
	}

	step := time.Duration(stepSec) * time.Second
	buckets := make(map[time.Time]float64, len(df.Points))
	for _, p := range df.Points {
		buckets[AlignTimestamp(p.TS, stepSec)] += p.Value
	}

	first := AlignTimestamp(df.Points[0].TS, stepSec)
	last := AlignTimestamp(df.Points[len(df.Points)-1].TS, stepSec)

	out := &DataFrame{Points: make([]Point, 0, int(last.Sub(first)/step)+1)}
	prev := 0.0
	for ts := first; !ts.After(last); ts = ts.Add(step) {
		v, ok := buckets[ts]
		if !ok {
			v = prev
		}
		out.Points = append(out.Points, Point{TS: ts, Value: v})
		prev = v
	}
	return out
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TS.Before(points[j].TS)
	})
}

// Adapter is implemented by every series source.
//
// Collect is synchronous and must respect context cancellation and deadlines.
type Adapter interface {
	// Collect fetches the points of the last windowSeconds.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier such as "prometheus" or "http".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of stepSec seconds.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
