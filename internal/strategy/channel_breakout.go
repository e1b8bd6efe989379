package strategy

import (
	"github.com/markcheno/go-talib"

	"trading-decision-engine/internal/domain"
)

// ChannelBreakoutConfig configures the Donchian channel breakout strategy.
type ChannelBreakoutConfig struct {
	Lookback int `json:"lookback"`
}

// ChannelBreakout signals when the latest close escapes the high/low
// channel of the preceding bars. A close inside the channel is flat.
type ChannelBreakout struct {
	cfg ChannelBreakoutConfig
}

// NewChannelBreakout creates the strategy, filling zero-valued settings with defaults.
func NewChannelBreakout(cfg ChannelBreakoutConfig) *ChannelBreakout {
	if cfg.Lookback == 0 {
		cfg.Lookback = 20
	}
	return &ChannelBreakout{cfg: cfg}
}

func (s *ChannelBreakout) Name() string {
	return "channel_breakout"
}

func (s *ChannelBreakout) ProduceSignal(window []domain.Bar) (domain.Signal, error) {
	if s.cfg.Lookback < 1 {
		return domain.Signal{}, &domain.InvalidConfigurationError{
			Field:  "lookback",
			Value:  s.cfg.Lookback,
			Reason: "must be at least 1",
		}
	}
	required := s.cfg.Lookback + 1
	if len(window) < required {
		return domain.Signal{}, &domain.InsufficientDataError{
			Required: required,
			Got:      len(window),
			Subject:  s.Name(),
		}
	}

	// Channel from the bars before the current one, so the breakout bar
	// does not widen its own channel.
	prior := window[:len(window)-1]
	highs := make([]float64, len(prior))
	lows := make([]float64, len(prior))
	for i, bar := range prior {
		highs[i] = bar.High
		lows[i] = bar.Low
	}

	upperSeries := talib.Max(highs, s.cfg.Lookback)
	lowerSeries := talib.Min(lows, s.cfg.Lookback)
	upper := upperSeries[len(upperSeries)-1]
	lower := lowerSeries[len(lowerSeries)-1]
	width := upper - lower

	lastClose := window[len(window)-1].Close
	var strength float64
	switch {
	case lastClose > upper:
		strength = breakoutStrength(lastClose-upper, width)
	case lastClose < lower:
		strength = -breakoutStrength(lower-lastClose, width)
	}

	return domain.Signal{
		Direction: directionOf(strength),
		Strength:  strength,
		Metadata: map[string]interface{}{
			"channel_upper": upper,
			"channel_lower": lower,
		},
	}, nil
}

// breakoutStrength starts at 0.5 on any breakout and grows with the
// penetration relative to the channel width.
func breakoutStrength(penetration, width float64) float64 {
	if width <= 0 {
		return 1
	}
	extra := penetration / width
	if extra > 0.5 {
		extra = 0.5
	}
	return 0.5 + extra
}
