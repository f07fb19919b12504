// Package capacity turns forecast demand into guard crew counts using a
// deterministic policy (demand per crew, headroom, clamps).
package capacity

import (
	"fmt"
	"math"
)

// Rounding modes for fractional crews.
const (
	RoundCeil  = "ceil"
	RoundRound = "round"
	RoundFloor = "floor"
)

// Policy defines how forecast demand is translated into crews.
type Policy struct {
	// DemandPerCrew is the demand one crew can cover per step (e.g. 8 guard-hours
	// per shift, or 4 escort requests per hour). Must be > 0.
	DemandPerCrew float64

	// Headroom is a multiplicative safety factor applied to the point forecast
	// (e.g. 1.2 for +20%). Must be >= 1.0.
	Headroom float64

	// UseUpperBound plans against the upper prediction bound instead of
	// forecast × Headroom when bounds are available.
	UseUpperBound bool

	// MinCrews/MaxCrews bound the plan. MaxCrews == 0 means no upper bound.
	MinCrews int
	MaxCrews int

	// UpMaxFactorPerStep caps growth relative to the previous step.
	// 2.0 allows doubling per step at most. If <= 0, defaults to 2.0.
	UpMaxFactorPerStep float64

	// DownMaxPercentPerStep caps the drop relative to the previous step, in
	// percent. Clamped to [0,100].
	DownMaxPercentPerStep int

	// PrewarmWindowSteps plans each step for the max demand over the next N
	// steps, so crews are rostered before a peak arrives.
	PrewarmWindowSteps int

	// RoundingMode is RoundCeil (default), RoundRound or RoundFloor.
	RoundingMode string
}

// Validate reports policy values that cannot be normalized.
func (p Policy) Validate() error {
	if p.DemandPerCrew <= 0 {
		return fmt.Errorf("demand per crew must be > 0, got %v", p.DemandPerCrew)
	}
	if p.Headroom != 0 && p.Headroom < 1 {
		return fmt.Errorf("headroom must be >= 1.0, got %v", p.Headroom)
	}
	if p.MaxCrews > 0 && p.MaxCrews < p.MinCrews {
		return fmt.Errorf("max crews (%d) must be >= min crews (%d)", p.MaxCrews, p.MinCrews)
	}
	switch p.RoundingMode {
	case "", RoundCeil, RoundRound, RoundFloor:
	default:
		return fmt.Errorf("invalid rounding mode %q (must be ceil, round, or floor)", p.RoundingMode)
	}
	return nil
}

// ToCrews converts forecast demand into crews per step.
// prev is the crew count currently rostered. upper optionally holds the upper
// prediction bound for each step; it is used when Policy.UseUpperBound is set
// and its length matches forecast.
func ToCrews(prev int, forecast, upper []float64, p Policy) []int {
	if len(forecast) == 0 {
		return nil
	}
	if p.DemandPerCrew <= 0 {
		p.DemandPerCrew = 1
	}
	if p.Headroom < 1 {
		p.Headroom = 1
	}
	if p.MinCrews < 0 {
		p.MinCrews = 0
	}
	if p.MaxCrews > 0 && p.MaxCrews < p.MinCrews {
		p.MaxCrews = p.MinCrews
	}
	if p.UpMaxFactorPerStep <= 0 {
		p.UpMaxFactorPerStep = 2.0
	}
	p.DownMaxPercentPerStep = min(100, max(0, p.DownMaxPercentPerStep))
	if p.PrewarmWindowSteps < 0 {
		p.PrewarmWindowSteps = 0
	}

	useUpper := p.UseUpperBound && len(upper) == len(forecast)

	need := make([]float64, len(forecast))
	for i, v := range forecast {
		demand := max(0, v) * p.Headroom
		if useUpper {
			demand = max(0, upper[i])
		}
		need[i] = demand / p.DemandPerCrew
	}

	res := make([]int, len(forecast))
	prevOut := clampBounds(prev, p.MinCrews, p.MaxCrews)

	for i := range need {
		end := min(i+p.PrewarmWindowSteps, len(need)-1)
		peak := 0.0
		for j := i; j <= end; j++ {
			peak = max(peak, need[j])
		}

		desired := roundCrews(peak, p.RoundingMode)

		// Bounds, then change clamps, then bounds again.
		desired = clampBounds(desired, p.MinCrews, p.MaxCrews)
		desired = clampChange(prevOut, desired, p.UpMaxFactorPerStep, p.DownMaxPercentPerStep)
		desired = clampBounds(desired, p.MinCrews, p.MaxCrews)

		res[i] = desired
		prevOut = desired
	}
	return res
}

// Summary aggregates a crew plan.
type Summary struct {
	Peak       int `json:"peak"`
	CrewSteps  int `json:"crewSteps"`
	Changes    int `json:"changes"`
	FinalCrews int `json:"finalCrews"`
}

// Summarize returns the peak, the total crew-steps and how many times the
// roster changes, counting the change from prev to the first step.
func Summarize(prev int, crews []int) Summary {
	var s Summary
	last := prev
	for _, c := range crews {
		s.Peak = max(s.Peak, c)
		s.CrewSteps += c
		if c != last {
			s.Changes++
		}
		last = c
	}
	s.FinalCrews = last
	return s
}

func roundCrews(x float64, mode string) int {
	switch mode {
	case RoundFloor:
		return int(math.Floor(x))
	case RoundRound:
		return int(math.Round(x))
	default:
		return int(math.Ceil(x))
	}
}

func clampBounds(x, lo, hi int) int {
	if hi > 0 && x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}

func clampChange(prev, next int, upFactor float64, downPct int) int {
	if prev < 0 {
		prev = 0
	}
	// Without crews on duty, grow from a single crew.
	if prev == 0 {
		maxUp := int(math.Ceil(upFactor))
		if next > maxUp {
			return maxUp
		}
		return next
	}
	maxUp := int(math.Ceil(float64(prev) * upFactor))
	minDown := int(math.Floor(float64(prev) * (1.0 - float64(downPct)/100.0)))
	if next > maxUp {
		return maxUp
	}
	if next < minDown {
		return minDown
	}
	return next
}
