package strategy

import (
	"github.com/markcheno/go-talib"

	"trading-decision-engine/internal/domain"
)

// RSIReversionConfig configures the RSI mean-reversion strategy.
type RSIReversionConfig struct {
	Period     int     `json:"period"`
	Oversold   float64 `json:"oversold"`
	Overbought float64 `json:"overbought"`
}

// RSIReversion fades extremes: long when RSI drops below the oversold
// threshold, short above the overbought one, flat in between.
type RSIReversion struct {
	cfg RSIReversionConfig
}

// NewRSIReversion creates the strategy, filling zero-valued settings with defaults.
func NewRSIReversion(cfg RSIReversionConfig) *RSIReversion {
	if cfg.Period == 0 {
		cfg.Period = 14
	}
	if cfg.Oversold == 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought == 0 {
		cfg.Overbought = 70
	}
	return &RSIReversion{cfg: cfg}
}

func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

func (s *RSIReversion) ProduceSignal(window []domain.Bar) (domain.Signal, error) {
	if s.cfg.Oversold <= 0 || s.cfg.Overbought >= 100 || s.cfg.Oversold >= s.cfg.Overbought {
		return domain.Signal{}, &domain.InvalidConfigurationError{
			Field:  "oversold/overbought",
			Value:  s.cfg.Oversold,
			Reason: "thresholds must satisfy 0 < oversold < overbought < 100",
		}
	}
	required := s.cfg.Period + 1
	if len(window) < required {
		return domain.Signal{}, &domain.InsufficientDataError{
			Required: required,
			Got:      len(window),
			Subject:  s.Name(),
		}
	}

	series := talib.Rsi(closeSeries(window), s.cfg.Period)
	rsi := series[len(series)-1]

	var strength float64
	switch {
	case rsi < s.cfg.Oversold:
		strength = (s.cfg.Oversold - rsi) / s.cfg.Oversold
	case rsi > s.cfg.Overbought:
		strength = -(rsi - s.cfg.Overbought) / (100 - s.cfg.Overbought)
	}

	return domain.Signal{
		Direction: directionOf(strength),
		Strength:  strength,
		Metadata: map[string]interface{}{
			"rsi": rsi,
		},
	}, nil
}
