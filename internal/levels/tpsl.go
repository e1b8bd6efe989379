package levels

import (
	"math"

	"github.com/markcheno/go-talib"

	"trading-decision-engine/internal/domain"
)

// StopMethod selects how the protective stop is anchored.
type StopMethod string

const (
	StopATR    StopMethod = "atr"
	StopSwing  StopMethod = "swing"
	StopHybrid StopMethod = "hybrid"
)

// TpSlConfig controls stop and target placement.
type TpSlConfig struct {
	Method        StopMethod `json:"method"`
	AtrPeriod     int        `json:"atr_period"`
	AtrMultSL     float64    `json:"atr_mult_sl"`
	AtrMultTP     float64    `json:"atr_mult_tp"`
	SwingLookback int        `json:"swing_lookback"`
	// SwingBuffer pads the swing extreme by this fraction so the stop sits
	// beyond the extreme, not on it.
	SwingBuffer float64 `json:"swing_buffer"`
	RiskReward  float64 `json:"risk_reward"`
}

// DefaultTpSlConfig returns the stop/target settings used when none are configured.
func DefaultTpSlConfig() TpSlConfig {
	return TpSlConfig{
		Method:        StopHybrid,
		AtrPeriod:     14,
		AtrMultSL:     2.0,
		AtrMultTP:     3.0,
		SwingLookback: 10,
		SwingBuffer:   0.001,
		RiskReward:    2.0,
	}
}

// Inputs are the primitives stop and target placement works from. SwingExtreme
// is the most recent swing low for longs, swing high for shorts.
type Inputs struct {
	Entry        float64
	Direction    domain.Direction
	ATR          float64
	SwingExtreme float64
}

// Levels is a validated stop/target pair. StopBasis records which anchor
// produced the stop ("atr" or "swing") for the decision rationale.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	StopBasis  string  `json:"stop_basis"`
}

// TpSlEngine computes protective stop and profit target prices.
type TpSlEngine struct {
	cfg TpSlConfig
}

// NewTpSlEngine creates a stop/target engine with the given configuration.
func NewTpSlEngine(cfg TpSlConfig) *TpSlEngine {
	return &TpSlEngine{cfg: cfg}
}

func (e *TpSlEngine) validate() error {
	switch e.cfg.Method {
	case StopATR, StopSwing, StopHybrid:
	default:
		return &domain.InvalidConfigurationError{Field: "method", Value: string(e.cfg.Method), Reason: "must be atr, swing, or hybrid"}
	}
	if e.cfg.AtrPeriod < 1 {
		return &domain.InvalidConfigurationError{Field: "atr_period", Value: e.cfg.AtrPeriod, Reason: "must be at least 1"}
	}
	if e.cfg.AtrMultSL <= 0 {
		return &domain.InvalidConfigurationError{Field: "atr_mult_sl", Value: e.cfg.AtrMultSL, Reason: "must be positive"}
	}
	if e.cfg.AtrMultTP <= 0 {
		return &domain.InvalidConfigurationError{Field: "atr_mult_tp", Value: e.cfg.AtrMultTP, Reason: "must be positive"}
	}
	if e.cfg.SwingLookback < 1 {
		return &domain.InvalidConfigurationError{Field: "swing_lookback", Value: e.cfg.SwingLookback, Reason: "must be at least 1"}
	}
	if e.cfg.SwingBuffer < 0 {
		return &domain.InvalidConfigurationError{Field: "swing_buffer", Value: e.cfg.SwingBuffer, Reason: "must not be negative"}
	}
	if e.cfg.RiskReward <= 0 {
		return &domain.InvalidConfigurationError{Field: "risk_reward", Value: e.cfg.RiskReward, Reason: "must be positive"}
	}
	return nil
}

// Compute places the stop and target for a directional decision. The result
// always satisfies stop < entry < target for longs and target < entry < stop
// for shorts; any violation fails with DegenerateLevelsError.
func (e *TpSlEngine) Compute(in Inputs) (Levels, error) {
	if err := e.validate(); err != nil {
		return Levels{}, err
	}
	if in.Direction == domain.DirectionFlat {
		return Levels{}, &domain.DegenerateLevelsError{
			Direction: in.Direction,
			Entry:     in.Entry,
			Reason:    "direction must be long or short",
		}
	}

	dir := float64(in.Direction)
	var out Levels

	switch e.cfg.Method {
	case StopATR:
		out.StopLoss = in.Entry - dir*e.cfg.AtrMultSL*in.ATR
		out.TakeProfit = in.Entry + dir*e.cfg.AtrMultTP*in.ATR
		out.StopBasis = string(StopATR)
	case StopSwing:
		out.StopLoss = e.swingStop(in)
		out.TakeProfit = in.Entry + dir*e.cfg.RiskReward*math.Abs(in.Entry-out.StopLoss)
		out.StopBasis = string(StopSwing)
	case StopHybrid:
		atrStop := in.Entry - dir*e.cfg.AtrMultSL*in.ATR
		swingStop := e.swingStop(in)
		out.StopLoss, out.StopBasis = atrStop, string(StopATR)
		// Tighter means closer to entry: the higher stop for longs, the
		// lower one for shorts.
		if (in.Direction == domain.DirectionLong && swingStop > atrStop) ||
			(in.Direction == domain.DirectionShort && swingStop < atrStop) {
			out.StopLoss, out.StopBasis = swingStop, string(StopSwing)
		}
		out.TakeProfit = in.Entry + dir*e.cfg.RiskReward*math.Abs(in.Entry-out.StopLoss)
	}

	if err := checkOrdering(in.Direction, in.Entry, out); err != nil {
		return Levels{}, err
	}
	return out, nil
}

// ComputeFromBars derives ATR and the swing extreme from the window, then
// delegates to Compute.
func (e *TpSlEngine) ComputeFromBars(bars []domain.Bar, direction domain.Direction, entry float64) (Levels, error) {
	if err := e.validate(); err != nil {
		return Levels{}, err
	}

	required := e.cfg.AtrPeriod + 1
	if e.cfg.SwingLookback > required {
		required = e.cfg.SwingLookback
	}
	if len(bars) < required {
		return Levels{}, &domain.InsufficientDataError{
			Required: required,
			Got:      len(bars),
			Subject:  "stop/target window",
		}
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
	}

	atrSeries := talib.Atr(highs, lows, closes, e.cfg.AtrPeriod)
	atr := atrSeries[len(atrSeries)-1]

	window := bars[len(bars)-e.cfg.SwingLookback:]
	var swing float64
	switch direction {
	case domain.DirectionLong:
		swing = window[0].Low
		for _, bar := range window[1:] {
			if bar.Low < swing {
				swing = bar.Low
			}
		}
	case domain.DirectionShort:
		swing = window[0].High
		for _, bar := range window[1:] {
			if bar.High > swing {
				swing = bar.High
			}
		}
	}

	return e.Compute(Inputs{Entry: entry, Direction: direction, ATR: atr, SwingExtreme: swing})
}

// swingStop pads the swing extreme away from entry by the configured buffer.
func (e *TpSlEngine) swingStop(in Inputs) float64 {
	if in.Direction == domain.DirectionLong {
		return in.SwingExtreme * (1 - e.cfg.SwingBuffer)
	}
	return in.SwingExtreme * (1 + e.cfg.SwingBuffer)
}

func checkOrdering(direction domain.Direction, entry float64, out Levels) error {
	ok := false
	switch direction {
	case domain.DirectionLong:
		ok = out.StopLoss < entry && entry < out.TakeProfit
	case domain.DirectionShort:
		ok = out.TakeProfit < entry && entry < out.StopLoss
	}
	if !ok {
		return &domain.DegenerateLevelsError{
			Direction:  direction,
			Entry:      entry,
			StopLoss:   out.StopLoss,
			TakeProfit: out.TakeProfit,
			Reason:     "stop and target do not bracket the entry",
		}
	}
	return nil
}
