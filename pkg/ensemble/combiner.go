// Package ensemble blends several forecasters into one regime-aware forecast.
//
// Each member forecasts the full history and is scored by a walk-forward
// backtest. Its weight is
//
//	skill = 1 / (1 + sMAPE/100 + min(MASE, 10)/10) × Affinity(regime, family)
//
// normalized so that weights sum to 1. The combined forecast is the weighted
// average per step. Bounds are the union of member bounds (lowest lower, highest
// upper) over members with positive weight, and confidence is the weighted
// average of member confidences. A single viable member is returned as is with
// weight 1.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/escolta/pkg/accuracy"
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/outliers"
	"github.com/HatiCode/escolta/pkg/regime"
	"github.com/HatiCode/escolta/pkg/validation"
)

// ErrNoViableForecaster is returned when no member produced a usable forecast.
var ErrNoViableForecaster = errors.New("no viable forecaster")

// ModelName identifies combined results.
const ModelName = "ensemble"

// Weights maps a forecaster name to its share of the combined forecast.
type Weights map[string]float64

// Result is a combined forecast plus the information used to build it.
type Result struct {
	models.Result
	Regime      regime.Label                `json:"regime"`
	Weights     Weights                     `json:"weights"`
	Scores      map[string]accuracy.Metrics `json:"scores"`
	Members     []models.Result             `json:"members"`
	DataQuality accuracy.DataQuality        `json:"dataQuality"`
	Cleaned     int                         `json:"cleaned"`
}

// Combiner runs a fixed set of forecasters and blends their output.
// It holds no per-call state and is safe for concurrent use.
type Combiner struct {
	members       []models.Forecaster
	logger        *slog.Logger
	backtestOpts  []validation.Option
	clean         bool
	iqrMultiplier float64
	concurrency   int
}

// Option configures a Combiner.
type Option func(*Combiner)

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Combiner) { c.logger = l }
}

// WithCleaning replaces IQR outliers (see outliers.DetectAndTreat) with the
// median before forecasting. A non-positive multiplier uses the default.
func WithCleaning(iqrMultiplier float64) Option {
	return func(c *Combiner) {
		c.clean = true
		c.iqrMultiplier = iqrMultiplier
	}
}

// WithBacktestOptions passes options to the walk-forward scoring of members.
func WithBacktestOptions(opts ...validation.Option) Option {
	return func(c *Combiner) { c.backtestOpts = append(c.backtestOpts, opts...) }
}

// WithConcurrency bounds how many members are evaluated at once.
func WithConcurrency(n int) Option {
	return func(c *Combiner) { c.concurrency = n }
}

// New creates a Combiner. Members must be non-empty with unique names.
func New(members []models.Forecaster, opts ...Option) (*Combiner, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble needs at least one forecaster")
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == nil {
			return nil, errors.New("nil forecaster")
		}
		if _, dup := seen[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate forecaster name %q", m.Name())
		}
		seen[m.Name()] = struct{}{}
	}

	c := &Combiner{
		members:     append([]models.Forecaster(nil), members...),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c, nil
}

// Members returns the names of the registered forecasters in order.
func (c *Combiner) Members() []string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return names
}

type evaluation struct {
	result models.Result
	score  accuracy.Metrics
	ok     bool
}

// Combine forecasts horizon steps with every member and blends the results.
func (c *Combiner) Combine(ctx context.Context, series []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("combine: %w", models.ErrInvalidHorizon)
	}

	input := append([]float64(nil), series...)
	cleaned := 0
	if c.clean {
		report := outliers.DetectAndTreat(input, c.iqrMultiplier)
		input = report.CleanedData
		cleaned = report.Count()
	}

	dq := accuracy.AssessDataQuality(input)
	label := regime.Detect(input)

	evals := c.evaluate(ctx, input, horizon, dq)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var viable []int
	for i, e := range evals {
		if e.ok {
			viable = append(viable, i)
		}
	}
	if len(viable) == 0 {
		return Result{}, ErrNoViableForecaster
	}

	out := Result{
		Regime:      label,
		Weights:     make(Weights, len(viable)),
		Scores:      make(map[string]accuracy.Metrics, len(viable)),
		Members:     make([]models.Result, 0, len(viable)),
		DataQuality: dq,
		Cleaned:     cleaned,
	}
	for _, i := range viable {
		out.Scores[c.members[i].Name()] = evals[i].score
		out.Members = append(out.Members, evals[i].result)
	}

	if len(viable) == 1 {
		only := evals[viable[0]]
		out.Result = only.result
		out.Weights[c.members[viable[0]].Name()] = 1
		c.logger.Debug("single viable forecaster", "model", only.result.Model, "regime", label.Regime)
		return out, nil
	}

	skills := make([]float64, len(viable))
	total := 0.0
	for k, i := range viable {
		skills[k] = Skill(evals[i].score) * Affinity(label, models.FamilyOf(c.members[i]))
		total += skills[k]
	}
	for k, i := range viable {
		w := 1 / float64(len(viable))
		if total > 0 {
			w = skills[k] / total
		}
		out.Weights[c.members[i].Name()] = w
	}

	out.Result = blend(out.Members, c.weightsInOrder(out.Weights, viable), horizon)

	c.logger.Debug("ensemble combined",
		"regime", label.Regime,
		"regime_confidence", label.Confidence,
		"members", len(viable),
		"confidence", out.Confidence,
	)
	return out, nil
}

func (c *Combiner) weightsInOrder(w Weights, viable []int) []float64 {
	out := make([]float64, len(viable))
	for k, i := range viable {
		out[k] = w[c.members[i].Name()]
	}
	return out
}

// evaluate forecasts and backtests every member concurrently. Results keep
// registration order.
func (c *Combiner) evaluate(ctx context.Context, series []float64, horizon int, dq accuracy.DataQuality) []evaluation {
	evals := make([]evaluation, len(c.members))
	btOpts := append([]validation.Option{validation.WithDataQuality(dq), validation.WithLogger(c.logger)}, c.backtestOpts...)

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for i, m := range c.members {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := m.Forecast(ctx, series, horizon)
			if err != nil {
				c.logger.Debug("forecaster not viable", "model", m.Name(), "error", err)
				return nil
			}
			if !usable(res, horizon) {
				c.logger.Debug("forecaster returned unusable forecast", "model", m.Name(), "points", len(res.Forecast))
				return nil
			}
			if res.Model == "" {
				res.Model = m.Name()
			}
			score := validation.RollingBacktest(ctx, series, validation.FromForecaster(m), btOpts...)
			evals[i] = evaluation{result: res, score: score, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	return evals
}

func usable(res models.Result, horizon int) bool {
	if len(res.Forecast) != horizon || len(res.LowerBound) != horizon || len(res.UpperBound) != horizon {
		return false
	}
	for i := range res.Forecast {
		for _, v := range []float64{res.Forecast[i], res.LowerBound[i], res.UpperBound[i]} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Skill maps backtest accuracy to a positive score; a perfect backtest scores 1.
func Skill(m accuracy.Metrics) float64 {
	return 1 / (1 + m.SMAPE/100 + math.Min(m.MASE, accuracy.WorstMASE)/accuracy.WorstMASE)
}

func blend(members []models.Result, weights []float64, horizon int) models.Result {
	res := models.Result{
		Model:        ModelName,
		Forecast:     make([]float64, horizon),
		LowerBound:   make([]float64, horizon),
		UpperBound:   make([]float64, horizon),
		Changepoints: []int{},
	}
	for p := range horizon {
		res.LowerBound[p] = math.Inf(1)
		res.UpperBound[p] = math.Inf(-1)
	}

	for k, m := range members {
		w := weights[k]
		res.Confidence += w * m.Confidence
		for p := range horizon {
			res.Forecast[p] += w * m.Forecast[p]
			if w > 0 {
				res.LowerBound[p] = math.Min(res.LowerBound[p], m.LowerBound[p])
				res.UpperBound[p] = math.Max(res.UpperBound[p], m.UpperBound[p])
			}
		}
	}
	res.Confidence = math.Max(0, math.Min(1, res.Confidence))
	return res
}
