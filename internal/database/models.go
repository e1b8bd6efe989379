package database

import (
	"time"
)

// BarRecord is one persisted OHLCV bar for a symbol and interval.
type BarRecord struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	BarTime   time.Time `json:"bar_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

// MetricsRecord is one persisted rolling-metrics snapshot for a strategy.
type MetricsRecord struct {
	ID          int64     `json:"id"`
	StrategyID  string    `json:"strategy_id"`
	AsOf        time.Time `json:"as_of"`
	Sharpe      float64   `json:"sharpe"`
	WinRate     float64   `json:"win_rate"`
	MaxDrawdown float64   `json:"max_drawdown"`
	CAGR        float64   `json:"cagr"`
	WindowDays  int       `json:"window_days"`
	CreatedAt   time.Time `json:"created_at"`
}

// DecisionRecord is the summary row for a persisted decision. The full
// aggregate lives in the decision JSONB column; these fields are the
// indexed projection used for listing and filtering.
type DecisionRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	AsOf       time.Time `json:"as_of"`
	Direction  string    `json:"direction"`
	Strength   float64   `json:"strength"`
	Confidence string    `json:"confidence"`
	Degraded   bool      `json:"degraded"`
	CreatedAt  time.Time `json:"created_at"`
}

// SystemEvent represents a system event for audit logging.
type SystemEvent struct {
	ID        int64                  `json:"id"`
	EventType string                 `json:"event_type"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	CreatedAt time.Time              `json:"created_at"`
}
