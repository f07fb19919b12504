package models

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/escolta/pkg/accuracy"
)

// DefaultValidationPeriods is the held-out tail scored by OptimizeParameters.
const DefaultValidationPeriods = 3

// minTuningHistory is the training length required on top of the held-out tail.
const minTuningHistory = 6

var (
	changePointPriorScales = []float64{0.001, 0.01, 0.05, 0.1, 0.5}
	seasonalityPriorScales = []float64{0.01, 0.1, 1, 10}
	changepointCounts      = []int{3, 5, 10}
)

// OptimizeParameters grid-searches ChangePointPriorScale, SeasonalityPriorScale
// and NChangepoints around the forecaster's configuration. Each candidate is
// fitted on all but the last validationPeriods points and scored by MAE on
// that tail; the lowest score wins, ties going to the earlier grid entry.
// Only NChangepoints changes the fitted model, so the prior scales of the
// winner are always the first grid values (0.001 and 0.01).
//
// The forecaster's own configuration is returned unchanged when the history is
// shorter than validationPeriods+6 or no candidate produced a finite score.
// Candidates are evaluated concurrently; the only error is ctx's.
func (p *Prophet) OptimizeParameters(ctx context.Context, series []float64, validationPeriods int) (ProphetConfig, error) {
	if validationPeriods < 1 {
		validationPeriods = DefaultValidationPeriods
	}

	baseline := p.Config
	n := len(series)
	if n < validationPeriods+minTuningHistory {
		return baseline, nil
	}

	train := series[:n-validationPeriods]
	holdout := series[n-validationPeriods:]

	candidates := parameterGrid(baseline)
	scores := make([]float64, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, cfg := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := prophetForecast(train, validationPeriods, cfg)
			scores[i] = accuracy.MAE(holdout, res.Forecast)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return baseline, err
	}

	best := -1
	bestScore := math.Inf(1)
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if s < bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return baseline, nil
	}
	return candidates[best], nil
}

func parameterGrid(base ProphetConfig) []ProphetConfig {
	grid := make([]ProphetConfig, 0, len(changePointPriorScales)*len(seasonalityPriorScales)*len(changepointCounts))
	for _, cps := range changePointPriorScales {
		for _, sps := range seasonalityPriorScales {
			for _, ncp := range changepointCounts {
				cfg := base
				cfg.ChangePointPriorScale = cps
				cfg.SeasonalityPriorScale = sps
				cfg.NChangepoints = ncp
				grid = append(grid, cfg)
			}
		}
	}
	return grid
}
