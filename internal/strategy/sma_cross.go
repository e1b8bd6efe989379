package strategy

import (
	"github.com/markcheno/go-talib"

	"trading-decision-engine/internal/domain"
)

// SMACrossConfig configures the moving-average crossover strategy.
type SMACrossConfig struct {
	FastPeriod int     `json:"fast_period"`
	SlowPeriod int     `json:"slow_period"`
	// FullStrengthGap is the fast/slow separation, as a fraction of the
	// slow average, at which the signal saturates.
	FullStrengthGap float64 `json:"full_strength_gap"`
}

// SMACross signals long while the fast average trades above the slow one,
// with strength proportional to their separation.
type SMACross struct {
	cfg SMACrossConfig
}

// NewSMACross creates the strategy, filling zero-valued settings with defaults.
func NewSMACross(cfg SMACrossConfig) *SMACross {
	if cfg.FastPeriod == 0 {
		cfg.FastPeriod = 10
	}
	if cfg.SlowPeriod == 0 {
		cfg.SlowPeriod = 30
	}
	if cfg.FullStrengthGap == 0 {
		cfg.FullStrengthGap = 0.05
	}
	return &SMACross{cfg: cfg}
}

func (s *SMACross) Name() string {
	return "sma_cross"
}

func (s *SMACross) ProduceSignal(window []domain.Bar) (domain.Signal, error) {
	if s.cfg.FastPeriod < 1 || s.cfg.SlowPeriod <= s.cfg.FastPeriod {
		return domain.Signal{}, &domain.InvalidConfigurationError{
			Field:  "fast_period/slow_period",
			Value:  s.cfg.SlowPeriod,
			Reason: "slow period must exceed fast period",
		}
	}
	if len(window) < s.cfg.SlowPeriod {
		return domain.Signal{}, &domain.InsufficientDataError{
			Required: s.cfg.SlowPeriod,
			Got:      len(window),
			Subject:  s.Name(),
		}
	}

	prices := closeSeries(window)
	fast := talib.Sma(prices, s.cfg.FastPeriod)
	slow := talib.Sma(prices, s.cfg.SlowPeriod)

	fastNow := fast[len(fast)-1]
	slowNow := slow[len(slow)-1]
	if slowNow == 0 {
		return domain.Signal{Direction: domain.DirectionFlat}, nil
	}

	gap := (fastNow - slowNow) / slowNow
	strength := scaledStrength(gap, s.cfg.FullStrengthGap)

	return domain.Signal{
		Direction: directionOf(strength),
		Strength:  strength,
		Metadata: map[string]interface{}{
			"fast_sma": fastNow,
			"slow_sma": slowNow,
		},
	}, nil
}
