// Package models builds the forecaster's ensemble members from configuration.
package models

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HatiCode/escolta/cmd/forecaster/config"
	"github.com/HatiCode/escolta/pkg/models"
)

// New creates one forecaster per entry of cfg.Models, in order. httpClient is
// used by the remote member; nil keeps its default client.
func New(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) ([]models.Forecaster, error) {
	if logger == nil {
		logger = slog.Default()
	}

	members := make([]models.Forecaster, 0, len(cfg.Models))
	for _, kind := range cfg.Models {
		m, err := newMember(kind, cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", kind, err)
		}
		logger.Info("initialized ensemble member", "model", m.Name(), "family", models.FamilyOf(m))
		members = append(members, m)
	}
	return members, nil
}

func newMember(kind string, cfg *config.Config, httpClient *http.Client) (models.Forecaster, error) {
	switch kind {
	case config.ModelProphet:
		pc := models.DefaultProphetConfig()
		pc.Period = cfg.SeasonalPeriod
		p := models.NewProphet(pc)
		p.AutoTune = cfg.Optimize
		return p, nil

	case config.ModelDrift:
		return models.NewDrift(), nil

	case config.ModelARIMA:
		m, err := models.NewARIMA(cfg.ARIMA_P, cfg.ARIMA_D, cfg.ARIMA_Q)
		if err != nil {
			return nil, err
		}
		return m, nil

	case config.ModelSARIMA:
		m, err := models.NewSARIMA(cfg.SARIMA_P, cfg.SARIMA_D, cfg.SARIMA_Q,
			cfg.SARIMA_SP, cfg.SARIMA_SD, cfg.SARIMA_SQ, cfg.SARIMA_S)
		if err != nil {
			return nil, err
		}
		return m, nil

	case config.ModelRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote URL is required")
		}
		return models.NewRemote("", cfg.RemoteURL, cfg.RemoteTimeout).WithClient(httpClient), nil

	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}
