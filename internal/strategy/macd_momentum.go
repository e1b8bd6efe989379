package strategy

import (
	"github.com/markcheno/go-talib"

	"trading-decision-engine/internal/domain"
)

// MACDMomentumConfig configures the MACD histogram momentum strategy.
type MACDMomentumConfig struct {
	FastPeriod   int `json:"fast_period"`
	SlowPeriod   int `json:"slow_period"`
	SignalPeriod int `json:"signal_period"`
	// FullStrengthHist is the histogram magnitude, as a fraction of the
	// close, at which the signal saturates.
	FullStrengthHist float64 `json:"full_strength_hist"`
}

// MACDMomentum follows the MACD histogram: positive histogram means the
// short-run trend is accelerating upward, negative means downward.
type MACDMomentum struct {
	cfg MACDMomentumConfig
}

// NewMACDMomentum creates the strategy, filling zero-valued settings with defaults.
func NewMACDMomentum(cfg MACDMomentumConfig) *MACDMomentum {
	if cfg.FastPeriod == 0 {
		cfg.FastPeriod = 12
	}
	if cfg.SlowPeriod == 0 {
		cfg.SlowPeriod = 26
	}
	if cfg.SignalPeriod == 0 {
		cfg.SignalPeriod = 9
	}
	if cfg.FullStrengthHist == 0 {
		cfg.FullStrengthHist = 0.01
	}
	return &MACDMomentum{cfg: cfg}
}

func (s *MACDMomentum) Name() string {
	return "macd_momentum"
}

func (s *MACDMomentum) ProduceSignal(window []domain.Bar) (domain.Signal, error) {
	if s.cfg.FastPeriod < 1 || s.cfg.SlowPeriod <= s.cfg.FastPeriod || s.cfg.SignalPeriod < 1 {
		return domain.Signal{}, &domain.InvalidConfigurationError{
			Field:  "fast_period/slow_period/signal_period",
			Value:  s.cfg.SlowPeriod,
			Reason: "periods must satisfy fast < slow and signal >= 1",
		}
	}
	required := s.cfg.SlowPeriod + s.cfg.SignalPeriod
	if len(window) < required {
		return domain.Signal{}, &domain.InsufficientDataError{
			Required: required,
			Got:      len(window),
			Subject:  s.Name(),
		}
	}

	prices := closeSeries(window)
	macd, signal, hist := talib.Macd(prices, s.cfg.FastPeriod, s.cfg.SlowPeriod, s.cfg.SignalPeriod)

	histNow := hist[len(hist)-1]
	lastClose := prices[len(prices)-1]
	if lastClose == 0 {
		return domain.Signal{Direction: domain.DirectionFlat}, nil
	}

	strength := scaledStrength(histNow/lastClose, s.cfg.FullStrengthHist)

	return domain.Signal{
		Direction: directionOf(strength),
		Strength:  strength,
		Metadata: map[string]interface{}{
			"macd":      macd[len(macd)-1],
			"signal":    signal[len(signal)-1],
			"histogram": histNow,
		},
	}, nil
}
