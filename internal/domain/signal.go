// Package domain holds the core types shared by the decision engine:
// per-strategy signals, combined consensus signals, rolling performance
// metrics, price levels, position plans and the daily decision aggregate.
package domain

import "time"

// Direction is the discrete directional call of a signal.
type Direction int

const (
	DirectionShort Direction = -1
	DirectionFlat  Direction = 0
	DirectionLong  Direction = 1
)

// String returns the lowercase name used in JSON payloads and logs.
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "flat"
	}
}

// MarshalText implements encoding.TextMarshaler so directions serialize
// as "long"/"short"/"flat" instead of raw integers.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "long":
		*d = DirectionLong
	case "short":
		*d = DirectionShort
	default:
		*d = DirectionFlat
	}
	return nil
}

// Signal is a single strategy's output for one bar. Strength is in [-1, 1]
// and carries the same sign as Direction when the direction is not flat.
// A Signal is immutable once emitted for a given bar.
type Signal struct {
	Direction Direction              `json:"direction"`
	Strength  float64                `json:"strength"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Bar is one OHLCV bar of market data.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice returns (high + low + close) / 3 for the bar.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Contribution records one strategy's input into a combined signal,
// including the weight it was given during combination.
type Contribution struct {
	StrategyID string    `json:"strategy_id"`
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"`
	Weight     float64   `json:"weight"`
}

// CombinedSignal is the consensus across strategies at one bar. It is
// recomputed wholesale when inputs change, never mutated in place.
type CombinedSignal struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	// ConfidenceWeight is the weighted fraction of contributing strategies
	// that agree with the combined direction, in [0, 1].
	ConfidenceWeight float64        `json:"confidence_weight"`
	Method           string         `json:"method"`
	Contributions    []Contribution `json:"contributing_strategies"`
}
