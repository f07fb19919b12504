// Package storage keeps the latest forecast snapshot per demand series.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidSeries is returned for empty or malformed series names.
var ErrInvalidSeries = errors.New("invalid series name")

// Snapshot is one published forecast for a series: the combined ensemble
// output and the crew plan derived from it.
type Snapshot struct {
	ID          string    `json:"id"`
	Series      string    `json:"series"`
	Metric      string    `json:"metric"`
	GeneratedAt time.Time `json:"generatedAt"`
	StepSeconds int       `json:"stepSeconds"`
	Horizon     int       `json:"horizon"`

	Values     []float64 `json:"values"`
	Lower      []float64 `json:"lower"`
	Upper      []float64 `json:"upper"`
	Confidence float64   `json:"confidence"`

	Regime           string             `json:"regime"`
	RegimeConfidence float64            `json:"regimeConfidence"`
	Weights          map[string]float64 `json:"weights,omitempty"`

	// Crews holds the planned number of guard crews per step, same length as Values.
	Crews []int `json:"crews,omitempty"`
}

// Age returns how long ago the snapshot was generated.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.GeneratedAt)
}

type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, series string) (Snapshot, bool, error)
	// Series lists the names of all series with a stored snapshot, sorted.
	Series(ctx context.Context) ([]string, error)
}

// NewID returns a fresh snapshot identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidateSeries accepts names made of letters, digits, '-', '_' and '.'.
func ValidateSeries(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSeries)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("%w %q: only alphanumeric, '-', '_' and '.' allowed", ErrInvalidSeries, name)
		}
	}
	return nil
}

// prepare validates a snapshot and assigns an ID when missing.
func prepare(s Snapshot) (Snapshot, error) {
	if err := ValidateSeries(s.Series); err != nil {
		return Snapshot{}, err
	}
	if s.ID == "" {
		s.ID = NewID()
	}
	return s, nil
}
