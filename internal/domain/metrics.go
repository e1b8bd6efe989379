package domain

import "time"

// StrategyMetrics is the rolling-window backtest summary for one strategy,
// evaluated as of a given timestamp. The engine consumes these as-is; the
// simulation that produced them is an external concern.
type StrategyMetrics struct {
	StrategyID  string    `json:"strategy_id"`
	Sharpe      float64   `json:"sharpe"`
	WinRate     float64   `json:"win_rate"`
	MaxDrawdown float64   `json:"max_drawdown"` // negative fraction, e.g. -0.12
	CAGR        float64   `json:"cagr"`
	WindowDays  int       `json:"window_days"`
	AsOf        time.Time `json:"as_of"`
}

// StrategyScore is the composite performance score derived from a
// StrategyMetrics tuple. Superseded scores are discarded, not versioned.
type StrategyScore struct {
	StrategyID  string  `json:"strategy_id"`
	Sharpe      float64 `json:"sharpe"`
	WinRate     float64 `json:"win_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Composite   float64 `json:"composite_score"`
}
