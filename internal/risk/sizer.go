// Package risk turns a validated stop distance into a position size under
// a fixed fractional-risk budget.
package risk

import (
	"math"

	"trading-decision-engine/internal/domain"
)

// SizerConfig sets the capital base and the fraction of it risked per trade.
type SizerConfig struct {
	Capital float64 `json:"capital"`
	RiskPct float64 `json:"risk_pct"`
}

// DefaultSizerConfig returns the sizing settings used when none are configured.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Capital: 10000,
		RiskPct: 0.01,
	}
}

// Sizer computes position quantity from the distance between entry and stop.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer, rejecting non-positive capital and risk
// fractions outside (0, 1].
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.Capital <= 0 || math.IsNaN(cfg.Capital) || math.IsInf(cfg.Capital, 0) {
		return nil, &domain.InvalidConfigurationError{Field: "capital", Value: cfg.Capital, Reason: "must be positive and finite"}
	}
	if cfg.RiskPct <= 0 || cfg.RiskPct > 1 {
		return nil, &domain.InvalidConfigurationError{Field: "risk_pct", Value: cfg.RiskPct, Reason: "must be in (0, 1]"}
	}
	return &Sizer{cfg: cfg}, nil
}

// PlanPosition sizes a trade so that a fill at entry stopped out at stop
// loses exactly capital × risk_pct. Quantity is always non-negative;
// direction is carried by the decision, not the sign.
func (s *Sizer) PlanPosition(entry, stop float64) (domain.PositionPlan, error) {
	distance := math.Abs(entry - stop)
	if distance == 0 {
		return domain.PositionPlan{}, &domain.ZeroRiskDistanceError{Entry: entry}
	}

	riskAmount := s.cfg.Capital * s.cfg.RiskPct
	quantity := riskAmount / distance

	return domain.PositionPlan{
		Quantity:      quantity,
		NotionalValue: quantity * entry,
		RiskAmount:    riskAmount,
	}, nil
}
