package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/HatiCode/escolta/pkg/accuracy"
	"github.com/HatiCode/escolta/pkg/adapters"
	"github.com/HatiCode/escolta/pkg/client"
	"github.com/HatiCode/escolta/pkg/ensemble"
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/outliers"
	"github.com/HatiCode/escolta/pkg/regime"
	"github.com/HatiCode/escolta/pkg/validation"
)

const envPrefix = "ESCOLTA"

// cli carries the settings shared by every command.
type cli struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Forecast demand series and plan guard crews",
		Long:          `Runs the Escolta forecasters, the regime-aware ensemble and the accuracy tools over a series file or stdin.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "YAML config file with flag defaults")
	root.PersistentFlags().StringP("input", "i", "", "Series file (JSON or CSV); stdin when empty or '-'")
	root.PersistentFlags().Bool("verbose", false, "Log debug output to stderr")

	root.AddCommand(c.forecastCmd())
	root.AddCommand(c.ensembleCmd())
	root.AddCommand(c.backtestCmd())
	root.AddCommand(c.regimeCmd())
	root.AddCommand(c.outliersCmd())
	root.AddCommand(c.metricsCmd())
	root.AddCommand(c.currentCmd())
	root.AddCommand(c.generateCmd())

	return root
}

// setup binds the executing command's flags into viper, then layers the
// environment and the optional config file underneath them.
func (c *cli) setup(cmd *cobra.Command) error {
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		c.v.SetConfigType("yaml")
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := slog.LevelWarn
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (c *cli) forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast a series with a single model",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := c.readSeries(cmd, c.v.GetString("input"))
			if err != nil {
				return err
			}
			m, err := c.model(c.v.GetString("model"))
			if err != nil {
				return err
			}
			res, err := m.Forecast(cmd.Context(), series, c.v.GetInt("horizon"))
			if err != nil {
				return fmt.Errorf("forecast: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	addModelFlags(cmd)
	cmd.Flags().String("model", "prophet", "Model: prophet, drift, arima or sarima")
	return cmd
}

func (c *cli) ensembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Combine several models with regime-aware weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := c.readSeries(cmd, c.v.GetString("input"))
			if err != nil {
				return err
			}

			var members []models.Forecaster
			for _, name := range splitList(c.v.GetStringSlice("models")) {
				m, err := c.model(name)
				if err != nil {
					return err
				}
				members = append(members, m)
			}

			opts := []ensemble.Option{
				ensemble.WithLogger(c.logger),
				ensemble.WithBacktestOptions(validation.WithSeasonalPeriod(c.v.GetInt("period"))),
			}
			if c.v.GetBool("clean") {
				opts = append(opts, ensemble.WithCleaning(c.v.GetFloat64("iqr")))
			}
			combiner, err := ensemble.New(members, opts...)
			if err != nil {
				return err
			}

			res, err := combiner.Combine(cmd.Context(), series, c.v.GetInt("horizon"))
			if err != nil {
				return fmt.Errorf("ensemble: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	addModelFlags(cmd)
	cmd.Flags().StringSlice("models", []string{"prophet", "drift", "arima"}, "Ensemble members")
	cmd.Flags().Bool("clean", true, "Replace IQR outliers before combining")
	cmd.Flags().Float64("iqr", outliers.DefaultIQRMultiplier, "IQR fence multiplier used when cleaning")
	return cmd
}

func (c *cli) backtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Score a model with a rolling-origin backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := c.readSeries(cmd, c.v.GetString("input"))
			if err != nil {
				return err
			}
			m, err := c.model(c.v.GetString("model"))
			if err != nil {
				return err
			}

			opts := []validation.Option{
				validation.WithSeasonalPeriod(c.v.GetInt("period")),
				validation.WithDataQuality(accuracy.AssessDataQuality(series)),
				validation.WithLogger(c.logger),
			}
			if n := c.v.GetInt("test-size"); n > 0 {
				opts = append(opts, validation.WithTestSize(n))
			}
			if n := c.v.GetInt("min-train"); n > 0 {
				opts = append(opts, validation.WithMinTrainSize(n))
			}

			report := validation.Backtest(cmd.Context(), series, validation.FromForecaster(m), opts...)
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	addModelFlags(cmd)
	cmd.Flags().String("model", "prophet", "Model: prophet, drift, arima or sarima")
	cmd.Flags().Int("test-size", 0, "Points forecast per cut (default from the validation package)")
	cmd.Flags().Int("min-train", 0, "Smallest training window (default from the validation package)")
	return cmd
}

func (c *cli) regimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regime",
		Short: "Classify the growth regime of a series",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := c.readSeries(cmd, c.v.GetString("input"))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), regime.Detect(series))
		},
	}
}

func (c *cli) outliersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outliers",
		Short: "Detect IQR outliers and print cleaned and winsorized series",
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := c.readSeries(cmd, c.v.GetString("input"))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outliers.DetectAndTreat(series, c.v.GetFloat64("iqr")))
		},
	}

	cmd.Flags().Float64("iqr", outliers.DefaultIQRMultiplier, "IQR fence multiplier")
	return cmd
}

func (c *cli) metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute accuracy metrics of a forecast against actuals",
		RunE: func(cmd *cobra.Command, args []string) error {
			actualPath, forecastPath := c.v.GetString("actual"), c.v.GetString("forecast")
			if actualPath == "" || forecastPath == "" {
				return errors.New("--actual and --forecast are required")
			}
			if actualPath == "-" && forecastPath == "-" {
				return errors.New("only one of --actual and --forecast can read stdin")
			}
			actual, err := c.readSeries(cmd, actualPath)
			if err != nil {
				return err
			}
			forecast, err := c.readSeries(cmd, forecastPath)
			if err != nil {
				return err
			}

			dq := accuracy.AssessDataQuality(actual)
			if s := c.v.GetString("data-quality"); s != "" {
				if dq, err = accuracy.ParseDataQuality(s); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), accuracy.Calculate(actual, forecast, dq))
		},
	}

	cmd.Flags().String("actual", "", "Observed series file ('-' for stdin)")
	cmd.Flags().String("forecast", "", "Forecast series file ('-' for stdin)")
	cmd.Flags().String("data-quality", "", "high, medium or low; inferred from the actuals when empty")
	return cmd
}

// currentView is the output of the current command.
type currentView struct {
	Series        string    `json:"series"`
	GeneratedAt   time.Time `json:"generatedAt"`
	Regime        string    `json:"regime"`
	Confidence    float64   `json:"confidence"`
	LeadTime      string    `json:"leadTime"`
	CrewsRequired int       `json:"crewsRequired"`
	Stale         bool      `json:"stale"`
	Crews         []int     `json:"crews"`
}

func (c *cli) currentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Fetch the latest crew plan from a running forecaster",
		RunE: func(cmd *cobra.Command, args []string) error {
			series := c.v.GetString("series")
			if series == "" {
				return errors.New("--series is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), c.v.GetDuration("timeout"))
			defer cancel()

			fc := client.New(c.v.GetString("server"), nil, c.logger)
			snap, err := fc.Current(ctx, series)
			if err != nil {
				return err
			}

			lead := c.v.GetDuration("lead-time")
			return printJSON(cmd.OutOrStdout(), currentView{
				Series:        snap.Series,
				GeneratedAt:   snap.GeneratedAt,
				Regime:        snap.Regime,
				Confidence:    snap.Confidence,
				LeadTime:      lead.String(),
				CrewsRequired: client.CrewsAtLeadTime(snap, lead),
				Stale:         client.IsStale(snap, lead, time.Now()),
				Crews:         snap.Crews,
			})
		},
	}

	cmd.Flags().String("server", "http://localhost:8081", "Forecaster base URL")
	cmd.Flags().String("series", "", "Series name")
	cmd.Flags().Duration("lead-time", time.Hour, "How far ahead crews must be rostered")
	cmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
	return cmd
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("horizon", 12, "Steps to forecast")
	cmd.Flags().Int("period", models.DefaultPeriod, "Seasonal period in steps")
	cmd.Flags().Bool("optimize", false, "Grid-search Prophet parameters before forecasting")
	cmd.Flags().IntSlice("arima-order", []int{1, 1, 1}, "ARIMA p,d,q")
	cmd.Flags().IntSlice("sarima-seasonal", []int{1, 1, 1}, "SARIMA seasonal P,D,Q (period from --period)")
}

// model builds a forecaster from its kind and the model flags.
func (c *cli) model(kind string) (models.Forecaster, error) {
	switch kind {
	case "prophet":
		cfg := models.DefaultProphetConfig()
		cfg.Period = c.v.GetInt("period")
		p := models.NewProphet(cfg)
		p.AutoTune = c.v.GetBool("optimize")
		return p, nil
	case "drift":
		return models.NewDrift(), nil
	case "arima":
		o, err := order(c.v.GetIntSlice("arima-order"), "arima-order")
		if err != nil {
			return nil, err
		}
		m, err := models.NewARIMA(o[0], o[1], o[2])
		if err != nil {
			return nil, err
		}
		return m, nil
	case "sarima":
		o, err := order(c.v.GetIntSlice("arima-order"), "arima-order")
		if err != nil {
			return nil, err
		}
		s, err := order(c.v.GetIntSlice("sarima-seasonal"), "sarima-seasonal")
		if err != nil {
			return nil, err
		}
		m, err := models.NewSARIMA(o[0], o[1], o[2], s[0], s[1], s[2], c.v.GetInt("period"))
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model %q (must be prophet, drift, arima or sarima)", kind)
	}
}

// splitList flattens comma separated entries; environment values arrive as a
// single element.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func order(v []int, flag string) ([3]int, error) {
	if len(v) != 3 {
		return [3]int{}, fmt.Errorf("--%s needs three values, got %d", flag, len(v))
	}
	return [3]int{v[0], v[1], v[2]}, nil
}

// readSeries loads a series from path, or from the command's stdin when path
// is empty or "-".
func (c *cli) readSeries(cmd *cobra.Command, path string) ([]float64, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	df, err := adapters.ReadSeries(r)
	if err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	series := df.Values()
	if len(series) == 0 {
		return nil, errors.New("read series: no values")
	}
	c.logger.Debug("read series", "source", path, "points", len(series))
	return series, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
