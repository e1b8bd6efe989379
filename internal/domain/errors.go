package domain

import (
	"errors"
	"fmt"
)

// ErrEmptySignalSet is returned when no strategy produced any signal.
// This is the one condition that aborts a decision cycle outright; every
// other engine failure is downgraded into a partial decision.
var ErrEmptySignalSet = errors.New("no strategy signals available")

// InvalidWeightError reports externally supplied combination weights that
// cannot be used: negative, non-finite, or summing to zero.
type InvalidWeightError struct {
	StrategyID string
	Weight     float64
	Reason     string
}

func (e *InvalidWeightError) Error() string {
	if e.StrategyID != "" {
		return fmt.Sprintf("invalid weight %g for strategy %s: %s", e.Weight, e.StrategyID, e.Reason)
	}
	return fmt.Sprintf("invalid weights: %s", e.Reason)
}

// InsufficientDataError reports an input window too short for an engine
// to compute safely.
type InsufficientDataError struct {
	Required int
	Got      int
	Subject  string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d bars, got %d", e.Subject, e.Required, e.Got)
}

// DegenerateLevelsError reports stop/target levels that violate the
// direction ordering invariant, e.g. when ATR is zero.
type DegenerateLevelsError struct {
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
}

func (e *DegenerateLevelsError) Error() string {
	return fmt.Sprintf("degenerate levels for %s entry %g (stop %g, target %g): %s",
		e.Direction, e.Entry, e.StopLoss, e.TakeProfit, e.Reason)
}

// ZeroRiskDistanceError reports a stop equal to the entry, which makes
// risk-based sizing undefined.
type ZeroRiskDistanceError struct {
	Entry float64
}

func (e *ZeroRiskDistanceError) Error() string {
	return fmt.Sprintf("entry and stop are both %g: risk distance is zero", e.Entry)
}

// InvalidConfigurationError reports a configuration value outside its
// legal range, e.g. a non-positive softmax temperature.
type InvalidConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}

// IsEngineError reports whether err belongs to the engine error taxonomy
// that the orchestrator downgrades instead of propagating.
func IsEngineError(err error) bool {
	var (
		iw *InvalidWeightError
		id *InsufficientDataError
		dl *DegenerateLevelsError
		zr *ZeroRiskDistanceError
		ic *InvalidConfigurationError
	)
	return errors.As(err, &iw) || errors.As(err, &id) || errors.As(err, &dl) ||
		errors.As(err, &zr) || errors.As(err, &ic)
}
