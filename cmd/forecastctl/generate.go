package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/HatiCode/escolta/pkg/adapters"
)

// demandPattern produces synthetic escort demand for one step.
type demandPattern struct {
	Description string
	// Demand returns requests per hour at t; i is the step index.
	Demand func(t time.Time, i int) float64
}

var patterns = map[string]demandPattern{
	"constant": {
		Description: "Steady demand of 40 requests/h",
		Demand: func(time.Time, int) float64 {
			return 40
		},
	},
	"shift-change": {
		Description: "Peaks around the 06:00, 14:00 and 22:00 shift changes",
		Demand: func(t time.Time, _ int) float64 {
			minutes := float64(t.Hour()*60 + t.Minute())
			peak := 0.0
			for _, center := range []float64{360, 840, 1320} {
				peak = math.Max(peak, math.Exp(-math.Pow(minutes-center, 2)/3600))
			}
			return 20 + 60*peak
		},
	},
	"business-hours": {
		Description: "High during 09:00-17:00, low otherwise",
		Demand: func(t time.Time, _ int) float64 {
			hour := t.Hour()
			if hour >= 9 && hour < 17 {
				return 100 + 50*math.Sin(float64(hour-9)*math.Pi/8)
			}
			return 20
		},
	},
	"daily-wave": {
		Description: "Smooth 24h sine wave between 20 and 140 requests/h",
		Demand: func(t time.Time, _ int) float64 {
			minutes := float64(t.Hour()*60 + t.Minute())
			return 80 + 60*math.Sin(minutes*math.Pi/720)
		},
	},
	"growth": {
		Description: "Linear growth of 2 requests/h per step from 30",
		Demand: func(_ time.Time, i int) float64 {
			return 30 + 2*float64(i)
		},
	},
}

func patternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// generate builds points steps apart ending at end. noise is the standard
// deviation of Gaussian noise added to each value; values never go below zero.
func generate(p demandPattern, end time.Time, step time.Duration, points int, noise float64, rng *rand.Rand) []adapters.Point {
	out := make([]adapters.Point, points)
	start := end.Add(-time.Duration(points-1) * step)
	for i := range out {
		ts := start.Add(time.Duration(i) * step)
		v := p.Demand(ts, i)
		if noise > 0 {
			v += rng.NormFloat64() * noise
		}
		out[i] = adapters.Point{TS: ts, Value: math.Round(math.Max(0, v)*100) / 100}
	}
	return out
}

func (c *cli) generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic demand series",
		Long:  "Generates a timestamped demand series for trying the forecasters. Patterns: " + strings.Join(patternNames(), ", ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := c.v.GetString("pattern")
			p, ok := patterns[name]
			if !ok {
				return fmt.Errorf("unknown pattern %q (must be one of %s)", name, strings.Join(patternNames(), ", "))
			}
			points := c.v.GetInt("points")
			if points < 1 {
				return fmt.Errorf("--points must be >= 1, got %d", points)
			}
			step := c.v.GetDuration("step")
			if step <= 0 {
				return fmt.Errorf("--step must be positive, got %s", step)
			}

			seed := c.v.GetUint64("seed")
			rng := rand.New(rand.NewPCG(seed, seed))
			end := time.Now().UTC().Truncate(step)

			series := generate(p, end, step, points, c.v.GetFloat64("noise"), rng)
			c.logger.Debug("generated series", "pattern", name, "points", len(series))

			if c.v.GetString("format") == "csv" {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "ts,value")
				for _, pt := range series {
					fmt.Fprintf(w, "%s,%g\n", pt.TS.Format(time.RFC3339), pt.Value)
				}
				return nil
			}
			return printJSON(cmd.OutOrStdout(), series)
		},
	}

	cmd.Flags().String("pattern", "shift-change", "Demand pattern")
	cmd.Flags().Int("points", 168, "Number of points")
	cmd.Flags().Duration("step", time.Hour, "Spacing between points")
	cmd.Flags().Float64("noise", 0, "Standard deviation of Gaussian noise")
	cmd.Flags().Uint64("seed", 1, "Random seed for the noise")
	cmd.Flags().String("format", "json", "Output format: json or csv")
	return cmd
}
