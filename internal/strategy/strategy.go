// Package strategy hosts the daily signal producers that feed the
// combination engine. Each strategy reads a trailing OHLCV window and
// emits a directional signal with a strength in [-1, 1].
package strategy

import (
	"trading-decision-engine/internal/domain"
)

// Strategy produces one signal per evaluation from a trailing bar window.
// Implementations must not mutate the window.
type Strategy interface {
	// Name returns the stable strategy identifier used in weights,
	// contributions, and persisted metrics.
	Name() string

	// ProduceSignal evaluates the window, most recent bar last.
	ProduceSignal(window []domain.Bar) (domain.Signal, error)
}

// DefaultSet returns the built-in strategies with their default settings.
func DefaultSet() []Strategy {
	return []Strategy{
		NewSMACross(SMACrossConfig{}),
		NewRSIReversion(RSIReversionConfig{}),
		NewMACDMomentum(MACDMomentumConfig{}),
		NewChannelBreakout(ChannelBreakoutConfig{}),
	}
}

// closeSeries extracts the close prices from a bar window.
func closeSeries(window []domain.Bar) []float64 {
	out := make([]float64, len(window))
	for i, bar := range window {
		out[i] = bar.Close
	}
	return out
}

// scaledStrength maps a raw indicator displacement onto [-1, 1], reaching
// full strength once |raw| >= scale.
func scaledStrength(raw, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	v := raw / scale
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// directionOf classifies a signed strength.
func directionOf(strength float64) domain.Direction {
	switch {
	case strength > 0:
		return domain.DirectionLong
	case strength < 0:
		return domain.DirectionShort
	default:
		return domain.DirectionFlat
	}
}
