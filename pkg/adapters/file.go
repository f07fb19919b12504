package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// FileAdapter reads a demand series from a local file. See ReadSeries for the
// accepted formats.
type FileAdapter struct {
	Path string
}

func (f *FileAdapter) Name() string { return "file" }

// Collect reads the file. When the points carry timestamps and windowSeconds
// is positive, only points within windowSeconds of the newest one are kept.
func (f *FileAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return &DataFrame{}, err
	}
	if f.Path == "" {
		return &DataFrame{}, errors.New("file adapter: path is required")
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("file adapter: %w", err)
	}
	defer fh.Close()

	df, err := ReadSeries(fh)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("file adapter: %w", err)
	}

	last, ok := df.Last()
	if !ok || last.TS.IsZero() || windowSeconds <= 0 {
		return df, nil
	}
	cutoff := last.TS.Add(-time.Duration(windowSeconds) * time.Second)
	kept := df.Points[:0]
	for _, p := range df.Points {
		if !p.TS.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	df.Points = kept
	return df, nil
}

// ReadSeries parses a series from r. Accepted inputs:
//
//	[1, 2, 3]                                  JSON array of numbers
//	{"series": [1, 2, 3]}                      also "values" or "data"
//	[{"ts": "2025-01-01T00:00:00Z", "value": 1}] JSON points (ts optional)
//	CSV with one value per line, or "ts,value" rows; a header row is skipped
func ReadSeries(r io.Reader) (*DataFrame, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty input")
	}
	if raw[0] == '[' || raw[0] == '{' {
		return readJSONSeries(raw)
	}
	return readCSVSeries(raw)
}

func readJSONSeries(raw []byte) (*DataFrame, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("malformed JSON")
	}
	doc := gjson.ParseBytes(raw)
	if doc.IsObject() {
		for _, key := range []string{"series", "values", "data"} {
			if v := doc.Get(key); v.IsArray() {
				doc = v
				break
			}
		}
	}
	if !doc.IsArray() {
		return nil, errors.New(`expected an array or an object with a "series" array`)
	}

	df := &DataFrame{Points: []Point{}}
	for i, item := range doc.Array() {
		switch {
		case item.Type == gjson.Number:
			df.Points = append(df.Points, Point{Value: item.Float()})
		case item.IsObject():
			v := item.Get("value")
			if v.Type != gjson.Number {
				return nil, fmt.Errorf("point %d: value is not a number", i)
			}
			p := Point{Value: v.Float()}
			if ts := item.Get("ts"); ts.Exists() {
				t, err := parseAnyTimestamp(ts.String())
				if err != nil {
					return nil, fmt.Errorf("point %d: %w", i, err)
				}
				p.TS = t
			}
			df.Points = append(df.Points, p)
		default:
			return nil, fmt.Errorf("point %d: unsupported element %s", i, item.Raw)
		}
	}
	if hasTimestamps(df.Points) {
		sortPoints(df.Points)
	}
	return df, nil
}

func readCSVSeries(raw []byte) (*DataFrame, error) {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	df := &DataFrame{Points: []Point{}}
	for i, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		valueField := strings.TrimSpace(rec[len(rec)-1])
		v, err := strconv.ParseFloat(valueField, 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: invalid value %q", i+1, valueField)
		}
		p := Point{Value: v}
		if len(rec) >= 2 {
			t, err := parseAnyTimestamp(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			p.TS = t
		}
		df.Points = append(df.Points, p)
	}
	if len(df.Points) == 0 {
		return nil, errors.New("no values found")
	}
	if hasTimestamps(df.Points) {
		sortPoints(df.Points)
	}
	return df, nil
}

func hasTimestamps(points []Point) bool {
	for _, p := range points {
		if p.TS.IsZero() {
			return false
		}
	}
	return len(points) > 0
}

// parseAnyTimestamp accepts RFC3339, YYYY-MM-DD or Unix seconds.
func parseAnyTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(sec), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
