package models

import (
	"context"
	"errors"
	"fmt"
)

// SARIMA forecasts with a Seasonal ARIMA model.
//
// SARIMA(p,d,q)(P,D,Q,s) where:
//   - p, d, q: Non-seasonal AR order, differencing order and MA order
//   - P, D, Q: Seasonal AR order, differencing order and MA order
//   - S: Seasonal period (12 for monthly data with a yearly cycle)
//
// SARIMA extends ARIMA with seasonal terms, which suits demand series with both
// a trend and a repeating yearly pattern.
type SARIMA struct {
	P, D, Q                         int
	SeasonalP, SeasonalD, SeasonalQ int
	S                               int

	// NonNegative clamps forecasts and lower bounds at zero.
	NonNegative bool
}

// NewSARIMA creates a SARIMA(p,d,q)(P,D,Q,s) forecaster for non-negative series.
//
// Zero non-seasonal orders select p=1, d=1, q=1. Zero seasonal orders with
// s > 0 select P=1, D=1, Q=1. s == 0 disables the seasonal part.
func NewSARIMA(p, d, q, sp, sd, sq, s int) (*SARIMA, error) {
	if p < 0 || q < 0 || sp < 0 || sq < 0 {
		return nil, errors.New("AR and MA orders must be >= 0")
	}
	if d < 0 || d > 2 {
		return nil, errors.New("d must be in range [0, 2]")
	}
	if sd < 0 || sd > 1 {
		return nil, errors.New("D must be in range [0, 1]")
	}
	if s < 0 || s == 1 {
		return nil, errors.New("s must be 0 (no seasonality) or >= 2")
	}

	if p == 0 {
		p = 1
	}
	if d == 0 {
		d = 1
	}
	if q == 0 {
		q = 1
	}
	if s > 0 {
		if sp == 0 {
			sp = 1
		}
		if sd == 0 {
			sd = 1
		}
		if sq == 0 {
			sq = 1
		}
	} else {
		sp, sd, sq = 0, 0, 0
	}

	return &SARIMA{P: p, D: d, Q: q, SeasonalP: sp, SeasonalD: sd, SeasonalQ: sq, S: s, NonNegative: true}, nil
}

// Name returns the model name with SARIMA parameters.
func (m *SARIMA) Name() string {
	if m.S == 0 {
		return fmt.Sprintf("sarima(%d,%d,%d)", m.P, m.D, m.Q)
	}
	return fmt.Sprintf("sarima(%d,%d,%d)(%d,%d,%d,%d)", m.P, m.D, m.Q, m.SeasonalP, m.SeasonalD, m.SeasonalQ, m.S)
}

// Family reports the autoregressive family.
func (m *SARIMA) Family() Family {
	return FamilyAutoregressive
}

// MinHistory is the number of points needed to fit the model:
// max(p+d, q+d, s·P+s·D, s·Q+s·D, 2·s, 20).
func (m *SARIMA) MinHistory() int {
	n := max(m.P+m.D, m.Q+m.D, 20)
	if m.S > 0 {
		n = max(n, m.S*(m.SeasonalP+m.SeasonalD), m.S*(m.SeasonalQ+m.SeasonalD), 2*m.S)
	}
	return n
}

// Forecast fits the model to history and projects horizon steps.
func (m *SARIMA) Forecast(ctx context.Context, history []float64, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, fmt.Errorf("%s forecast: %w", m.Name(), ErrInvalidHorizon)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if minPoints := m.MinHistory(); len(history) < minPoints {
		return Result{}, fmt.Errorf("need at least %d points for %s, got %d", minPoints, m.Name(), len(history))
	}

	order := arimaOrder{
		p: m.P, d: m.D, q: m.Q,
		sp: m.SeasonalP, sd: m.SeasonalD, sq: m.SeasonalQ,
		season: m.S,
	}
	res, err := fitAndForecast(history, order, horizon, m.NonNegative)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", m.Name(), err)
	}
	res.Model = m.Name()
	return res, nil
}
