// Package confidence grades a decision by the trailing performance of the
// strategy mix behind it, producing a tier, a comparable numeric score,
// and a recommended action.
package confidence

import (
	"math"

	"trading-decision-engine/internal/domain"
)

// Recommended actions, one per tier.
const (
	ActionExecute = "execute as planned"
	ActionReduce  = "reduce size"
	ActionSkip    = "skip or paper-trade only"
)

// Config holds tier thresholds, composite coefficients, and the fixed
// normalization bounds that keep scores comparable across days.
type Config struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	HighSharpe  float64 `json:"high_sharpe"`
	HighWinRate float64 `json:"high_win_rate"`
	HighMaxDD   float64 `json:"high_max_dd"`
	LowSharpe   float64 `json:"low_sharpe"`
	LowMaxDD    float64 `json:"low_max_dd"`

	SharpeFloor  float64 `json:"sharpe_floor"`
	SharpeCeil   float64 `json:"sharpe_ceil"`
	DrawdownCeil float64 `json:"drawdown_ceil"`
}

// DefaultConfig returns the confidence settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.4,
		Beta:         0.3,
		Gamma:        0.3,
		HighSharpe:   1.5,
		HighWinRate:  0.5,
		HighMaxDD:    0.15,
		LowSharpe:    0.5,
		LowMaxDD:     0.30,
		SharpeFloor:  -1.0,
		SharpeCeil:   3.0,
		DrawdownCeil: 0.5,
	}
}

// Scorer assigns confidence tiers and scores from rolling strategy metrics.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer, rejecting degenerate coefficient or bound
// configurations.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Alpha < 0 || cfg.Beta < 0 || cfg.Gamma < 0 {
		return nil, &domain.InvalidConfigurationError{Field: "alpha/beta/gamma", Value: cfg.Alpha, Reason: "coefficients must not be negative"}
	}
	if cfg.Alpha+cfg.Beta+cfg.Gamma <= 0 {
		return nil, &domain.InvalidConfigurationError{Field: "alpha/beta/gamma", Value: cfg.Alpha + cfg.Beta + cfg.Gamma, Reason: "coefficients must not all be zero"}
	}
	if cfg.SharpeCeil <= cfg.SharpeFloor {
		return nil, &domain.InvalidConfigurationError{Field: "sharpe_ceil", Value: cfg.SharpeCeil, Reason: "must exceed sharpe_floor"}
	}
	if cfg.DrawdownCeil <= 0 {
		return nil, &domain.InvalidConfigurationError{Field: "drawdown_ceil", Value: cfg.DrawdownCeil, Reason: "must be positive"}
	}
	return &Scorer{cfg: cfg}, nil
}

// Score grades the metrics. The tier drives the recommended action; the
// numeric score uses fixed bounds rather than set-relative normalization,
// so the same metrics always score the same regardless of peers.
func (s *Scorer) Score(m domain.StrategyMetrics) domain.ConfidenceIndicator {
	tier := s.tier(m)
	return domain.ConfidenceIndicator{
		Tier:              tier,
		Score:             s.numericScore(m),
		RecommendedAction: actionFor(tier),
	}
}

func (s *Scorer) tier(m domain.StrategyMetrics) domain.ConfidenceTier {
	drawdown := math.Abs(m.MaxDrawdown)
	if m.Sharpe >= s.cfg.HighSharpe && m.WinRate >= s.cfg.HighWinRate && drawdown <= s.cfg.HighMaxDD {
		return domain.TierHigh
	}
	if m.Sharpe < s.cfg.LowSharpe || drawdown > s.cfg.LowMaxDD {
		return domain.TierLow
	}
	return domain.TierMedium
}

func (s *Scorer) numericScore(m domain.StrategyMetrics) float64 {
	normSharpe := clamp01((m.Sharpe - s.cfg.SharpeFloor) / (s.cfg.SharpeCeil - s.cfg.SharpeFloor))
	normWinRate := clamp01(m.WinRate)
	normDrawdown := clamp01(math.Abs(m.MaxDrawdown) / s.cfg.DrawdownCeil)

	composite := s.cfg.Alpha*normSharpe + s.cfg.Beta*normWinRate - s.cfg.Gamma*normDrawdown
	// Composite spans [-gamma, alpha+beta]; shift and rescale onto [0, 1].
	return clamp01((composite + s.cfg.Gamma) / (s.cfg.Alpha + s.cfg.Beta + s.cfg.Gamma))
}

func actionFor(tier domain.ConfidenceTier) string {
	switch tier {
	case domain.TierHigh:
		return ActionExecute
	case domain.TierMedium:
		return ActionReduce
	default:
		return ActionSkip
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
