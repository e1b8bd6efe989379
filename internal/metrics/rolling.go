// Package metrics computes rolling performance statistics from realized
// per-strategy return series: sharpe ratio, win rate, max drawdown and
// CAGR. These feed strategy ranking and confidence scoring.
package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"trading-decision-engine/internal/domain"
)

// TradingDaysPerYear is the annualization basis for daily return series.
const TradingDaysPerYear = 252

// Returns converts a close-price series into simple per-bar returns.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return []float64{}
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			out[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}
	return out
}

// SharpeRatio computes the annualized sharpe of a daily return series:
// mean/stddev scaled by sqrt(252). A flat or too-short series yields 0.
func SharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// WinRate returns the fraction of strictly positive returns.
func WinRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}

// MaxDrawdown compounds the return series into an equity curve and tracks
// the deepest peak-to-trough decline. The result is a non-positive
// fraction, e.g. -0.18 for an 18% drawdown.
func MaxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (equity - peak) / peak; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// CAGR computes the compound annual growth rate of a daily return series.
// A series that wipes out the equity entirely returns -1.
func CAGR(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	total := 1.0
	for _, r := range returns {
		total *= 1 + r
	}
	if total <= 0 {
		return -1
	}
	years := float64(len(returns)) / TradingDaysPerYear
	return math.Pow(total, 1/years) - 1
}

// TrailingWindow returns the last n entries of a return series, or the
// whole series when it is shorter than n.
func TrailingWindow(returns []float64, n int) []float64 {
	if n <= 0 || len(returns) <= n {
		return returns
	}
	return returns[len(returns)-n:]
}

// Engine produces StrategyMetrics snapshots over a fixed trailing window.
type Engine struct {
	windowDays int
}

// NewEngine creates a metrics engine with the given trailing window in
// bars. A non-positive window means the full supplied series.
func NewEngine(windowDays int) *Engine {
	return &Engine{windowDays: windowDays}
}

// Snapshot computes the rolling metrics for one strategy as of the given
// timestamp. The caller must only pass returns realized at or before asOf;
// bars after that instant would leak future information into the ranking.
func (e *Engine) Snapshot(strategyID string, returns []float64, asOf time.Time) domain.StrategyMetrics {
	window := TrailingWindow(returns, e.windowDays)
	return domain.StrategyMetrics{
		StrategyID:  strategyID,
		Sharpe:      SharpeRatio(window),
		WinRate:     WinRate(window),
		MaxDrawdown: MaxDrawdown(window),
		CAGR:        CAGR(window),
		WindowDays:  len(window),
		AsOf:        asOf,
	}
}
