package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Band is an inclusive price range.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PriceLevels holds the executable levels for one decision. For a long
// decision StopLoss < EntryPrice < TakeProfit; for a short decision
// TakeProfit < EntryPrice < StopLoss. Computed once per cycle, immutable.
type PriceLevels struct {
	EntryPrice float64 `json:"entry_price"`
	EntryBand  Band    `json:"entry_band"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// PositionPlan sizes a position so that a stop-out loses the budgeted
// risk amount: Quantity * |entry - stop| == RiskAmount within tolerance.
type PositionPlan struct {
	Quantity      float64 `json:"quantity"`
	NotionalValue float64 `json:"notional_value"`
	RiskAmount    float64 `json:"risk_amount"`
}

// ConfidenceTier is the coarse reliability grade of a decision.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// ConfidenceIndicator grades a decision from rolling performance metrics.
// It is a stateless function of its inputs with no persisted identity.
type ConfidenceIndicator struct {
	Tier              ConfidenceTier `json:"tier"`
	Score             float64        `json:"score"`
	RecommendedAction string         `json:"recommended_action"`
}

// DailyDecision is the root aggregate produced by one decision cycle.
// Levels and Plan are nil when the direction is flat or when a downstream
// engine failed; Rationale explains how the decision was reached and any
// degradation along the way. Degraded marks decisions where at least one
// stage failed and was downgraded. Not mutated after construction.
type DailyDecision struct {
	ID         string              `json:"id"`
	Symbol     string              `json:"symbol"`
	AsOf       time.Time           `json:"as_of"`
	Signal     CombinedSignal      `json:"combined_signal"`
	Weights    map[string]float64  `json:"strategy_weights"`
	Levels     *PriceLevels        `json:"price_levels,omitempty"`
	Plan       *PositionPlan       `json:"position_plan,omitempty"`
	Confidence ConfidenceIndicator `json:"confidence_indicator"`
	Degraded   bool                `json:"degraded"`
	Rationale  []string            `json:"rationale"`
}

// DecisionID derives a stable identifier from symbol and timestamp, so
// repeated runs over identical inputs produce identical decisions.
func DecisionID(symbol string, asOf time.Time) string {
	name := fmt.Sprintf("decision:%s:%s", symbol, asOf.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
