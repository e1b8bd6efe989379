package engine

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/combiner"
	"trading-decision-engine/internal/domain"
)

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return orch
}

func trendBars(n int) []domain.Bar {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + 0.5*float64(i)
		bars[i] = domain.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func goodMetrics() map[string]domain.StrategyMetrics {
	return map[string]domain.StrategyMetrics{
		"alpha": {StrategyID: "alpha", Sharpe: 2.0, WinRate: 0.6, MaxDrawdown: -0.10, WindowDays: 252},
		"beta":  {StrategyID: "beta", Sharpe: 1.1, WinRate: 0.52, MaxDrawdown: -0.18, WindowDays: 252},
	}
}

func longRequest(bars []domain.Bar) Request {
	return Request{
		Symbol: "BTCUSDT",
		AsOf:   bars[len(bars)-1].Timestamp,
		Bars:   bars,
		Signals: map[string]domain.Signal{
			"alpha": {Direction: domain.DirectionLong, Strength: 0.8},
			"beta":  {Direction: domain.DirectionLong, Strength: 0.6},
		},
		Metrics: goodMetrics(),
	}
}

func TestRunProducesFullDecision(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	bars := trendBars(40)

	dec, err := orch.Run(longRequest(bars))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Signal.Direction != domain.DirectionLong {
		t.Errorf("Expected long decision, got %s", dec.Signal.Direction)
	}
	if dec.Levels == nil {
		t.Fatal("Expected price levels on a directional decision")
	}
	if !(dec.Levels.StopLoss < dec.Levels.EntryPrice && dec.Levels.EntryPrice < dec.Levels.TakeProfit) {
		t.Errorf("Levels must bracket entry: stop=%.4f entry=%.4f target=%.4f",
			dec.Levels.StopLoss, dec.Levels.EntryPrice, dec.Levels.TakeProfit)
	}
	if dec.Plan == nil {
		t.Fatal("Expected a position plan")
	}
	if math.Abs(dec.Plan.RiskAmount-100) > 1e-9 {
		t.Errorf("Expected risk amount 100, got %.4f", dec.Plan.RiskAmount)
	}
	realized := dec.Plan.Quantity * (dec.Levels.EntryPrice - dec.Levels.StopLoss)
	if math.Abs(realized-dec.Plan.RiskAmount) > 1e-6 {
		t.Errorf("Quantity times stop distance %.6f must equal risk amount %.6f", realized, dec.Plan.RiskAmount)
	}
	if len(dec.Weights) != 2 {
		t.Errorf("Expected scored weights for both strategies, got %v", dec.Weights)
	}
	if dec.Confidence.Tier != domain.TierHigh {
		t.Errorf("Expected high confidence from alpha metrics, got %s", dec.Confidence.Tier)
	}
	if len(dec.Rationale) == 0 {
		t.Error("Expected a populated rationale")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	bars := trendBars(40)

	first, err := orch.Run(longRequest(bars))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	second, err := orch.Run(longRequest(bars))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Identical requests must produce identical decisions")
	}
	if first.ID != second.ID {
		t.Errorf("Decision ID must be stable, got %s vs %s", first.ID, second.ID)
	}
}

func TestRunEmptySignalSetIsHardFailure(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())

	_, err := orch.Run(Request{
		Symbol:  "BTCUSDT",
		AsOf:    time.Now().UTC(),
		Bars:    trendBars(40),
		Signals: map[string]domain.Signal{},
	})

	if !errors.Is(err, domain.ErrEmptySignalSet) {
		t.Fatalf("Expected ErrEmptySignalSet, got %v", err)
	}
}

func TestRunFlatDecisionSkipsLevels(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	bars := trendBars(40)

	req := longRequest(bars)
	req.Signals = map[string]domain.Signal{
		"alpha": {Direction: domain.DirectionLong, Strength: 0.5},
		"beta":  {Direction: domain.DirectionShort, Strength: -0.5},
	}

	dec, err := orch.Run(req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Signal.Direction != domain.DirectionFlat {
		t.Errorf("Expected flat decision, got %s", dec.Signal.Direction)
	}
	if dec.Levels != nil || dec.Plan != nil {
		t.Error("Flat decisions must carry no levels or plan")
	}
	if !rationaleContains(dec.Rationale, "flat stance") {
		t.Errorf("Expected flat stance in rationale, got %v", dec.Rationale)
	}
}

func TestRunDowngradesOnShortWindow(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	bars := trendBars(3)

	req := longRequest(bars)
	dec, err := orch.Run(req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Signal.Direction != domain.DirectionLong {
		t.Errorf("Direction must be preserved on degraded output, got %s", dec.Signal.Direction)
	}
	if dec.Levels != nil || dec.Plan != nil {
		t.Error("Degraded decision must carry no levels or plan")
	}
	if !rationaleContains(dec.Rationale, "stop/target computation failed") {
		t.Errorf("Expected degradation note in rationale, got %v", dec.Rationale)
	}
}

func TestRunIgnoresBarsAfterAsOf(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	bars := trendBars(40)

	clean, err := orch.Run(longRequest(bars))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A wild future bar must not change anything decided as of today.
	future := bars[len(bars)-1]
	future.Timestamp = future.Timestamp.AddDate(0, 0, 1)
	future.High, future.Low, future.Close = 10000, 9000, 9500
	withFuture := longRequest(bars)
	withFuture.Bars = append(append([]domain.Bar{}, bars...), future)

	shifted, err := orch.Run(withFuture)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !reflect.DeepEqual(clean, shifted) {
		t.Error("Bars after as_of must not influence the decision")
	}
}

func TestRunDowngradesScoringFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ranking.Temperature = 0 // softmax cannot accept this

	orch := newTestOrchestrator(t, cfg)
	dec, err := orch.Run(longRequest(trendBars(40)))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Weights != nil {
		t.Errorf("Expected no weights after scoring failure, got %v", dec.Weights)
	}
	if dec.Signal.Direction != domain.DirectionLong {
		t.Errorf("Simple average must still combine, got %s", dec.Signal.Direction)
	}
	if !rationaleContains(dec.Rationale, "strategy scoring failed") {
		t.Errorf("Expected scoring failure note in rationale, got %v", dec.Rationale)
	}
}

func TestRunUsesWeightOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Combiner.Method = combiner.MethodWeightedAverage

	orch := newTestOrchestrator(t, cfg)
	req := longRequest(trendBars(40))
	req.Signals = map[string]domain.Signal{
		"alpha": {Direction: domain.DirectionLong, Strength: 1.0},
		"beta":  {Direction: domain.DirectionShort, Strength: -1.0},
	}
	req.Weights = map[string]float64{"alpha": 0.9, "beta": 0.1}

	dec, err := orch.Run(req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Signal.Direction != domain.DirectionLong {
		t.Errorf("Expected override weights to favor alpha, got %s", dec.Signal.Direction)
	}
	if math.Abs(dec.Signal.Strength-0.8) > 1e-9 {
		t.Errorf("Expected strength 0.8 from 0.9/0.1 weights, got %.4f", dec.Signal.Strength)
	}
}

func TestRunWithoutMetricsDefaultsConfidenceLow(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())

	req := longRequest(trendBars(40))
	req.Metrics = nil

	dec, err := orch.Run(req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if dec.Confidence.Tier != domain.TierLow {
		t.Errorf("Expected low confidence without metrics, got %s", dec.Confidence.Tier)
	}
	if !rationaleContains(dec.Rationale, "no trailing metrics") {
		t.Errorf("Expected metrics note in rationale, got %v", dec.Rationale)
	}
}

func rationaleContains(rationale []string, fragment string) bool {
	for _, line := range rationale {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
