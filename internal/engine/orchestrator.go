// Package engine runs the daily decision cycle: score strategies, combine
// their signals, derive levels and size, and grade the result. The cycle is
// synchronous and pure with respect to its request, so concurrent cycles for
// different symbols need no coordination.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/combiner"
	"trading-decision-engine/internal/confidence"
	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/levels"
	"trading-decision-engine/internal/ranking"
	"trading-decision-engine/internal/risk"
	"trading-decision-engine/internal/telemetry"
)

// Config aggregates the settings of every stage in the cycle.
type Config struct {
	Combiner   combiner.Config    `json:"combiner"`
	Ranking    ranking.Config     `json:"ranking"`
	Entry      levels.EntryConfig `json:"entry"`
	TpSl       levels.TpSlConfig  `json:"tpsl"`
	Sizer      risk.SizerConfig   `json:"sizer"`
	Confidence confidence.Config  `json:"confidence"`
}

// DefaultConfig returns the engine settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Combiner:   combiner.DefaultConfig(),
		Ranking:    ranking.DefaultConfig(),
		Entry:      levels.DefaultEntryConfig(),
		TpSl:       levels.DefaultTpSlConfig(),
		Sizer:      risk.DefaultSizerConfig(),
		Confidence: confidence.DefaultConfig(),
	}
}

// Request carries everything one decision cycle reads. Bars must be ordered
// oldest first; bars after AsOf are ignored so the cycle never sees the
// future. Weights, Metrics, and Returns are optional depending on the
// combination method.
type Request struct {
	Symbol  string
	AsOf    time.Time
	Bars    []domain.Bar
	Signals map[string]domain.Signal
	Metrics map[string]domain.StrategyMetrics
	Returns map[string][]float64
	// Weights overrides the scored weights when supplied.
	Weights map[string]float64
}

// Orchestrator drives one decision cycle to a terminal decision. Stage
// failures downgrade the decision and leave their trace in the rationale;
// only an empty signal set aborts the cycle.
type Orchestrator struct {
	cfg      Config
	ranker   *ranking.Ranker
	combiner *combiner.Combiner
	entry    *levels.EntryEngine
	tpsl     *levels.TpSlEngine
	sizer    *risk.Sizer
	scorer   *confidence.Scorer
	recorder *telemetry.Recorder
	log      zerolog.Logger
}

// NewOrchestrator wires the stages from config. Configurations that can be
// rejected up front (sizing, confidence) are.
func NewOrchestrator(cfg Config, logger zerolog.Logger) (*Orchestrator, error) {
	sizer, err := risk.NewSizer(cfg.Sizer)
	if err != nil {
		return nil, fmt.Errorf("sizer: %w", err)
	}
	scorer, err := confidence.NewScorer(cfg.Confidence)
	if err != nil {
		return nil, fmt.Errorf("confidence: %w", err)
	}
	ranker := ranking.NewRanker(cfg.Ranking)

	return &Orchestrator{
		cfg:      cfg,
		ranker:   ranker,
		combiner: combiner.New(cfg.Combiner, ranker),
		entry:    levels.NewEntryEngine(cfg.Entry),
		tpsl:     levels.NewTpSlEngine(cfg.TpSl),
		sizer:    sizer,
		scorer:   scorer,
		log:      logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// SetRecorder attaches a telemetry recorder for per-stage failure counts.
func (o *Orchestrator) SetRecorder(r *telemetry.Recorder) {
	o.recorder = r
}

// Run executes one decision cycle. The same request always yields the same
// decision, including its ID.
func (o *Orchestrator) Run(req Request) (domain.DailyDecision, error) {
	if len(req.Signals) == 0 {
		return domain.DailyDecision{}, domain.ErrEmptySignalSet
	}

	asOf := req.AsOf.UTC()
	bars := clampToAsOf(req.Bars, asOf)
	log := o.log.With().Str("symbol", req.Symbol).Time("as_of", asOf).Logger()

	dec := domain.DailyDecision{
		ID:     domain.DecisionID(req.Symbol, asOf),
		Symbol: req.Symbol,
		AsOf:   asOf,
	}
	var rationale []string

	weights := req.Weights
	if weights == nil && len(req.Metrics) > 0 {
		scored, err := o.scoreStrategies(req.Metrics)
		if err != nil {
			log.Warn().Err(err).Str("stage", "score_strategies").Msg("Scoring failed, combining without performance weights")
			o.recorder.RecordFailure("score_strategies")
			rationale = append(rationale, fmt.Sprintf("strategy scoring failed (%v); combining without performance weights", err))
			dec.Degraded = true
		} else {
			weights = scored
		}
	}
	dec.Weights = weights

	combined, err := o.combiner.Combine(combiner.Input{
		Signals: req.Signals,
		Weights: weights,
		Returns: req.Returns,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptySignalSet) {
			return domain.DailyDecision{}, err
		}
		log.Warn().Err(err).Str("stage", "combine_signals").Msg("Combination failed, defaulting to a flat stance")
		o.recorder.RecordFailure("combine_signals")
		rationale = append(rationale, fmt.Sprintf("signal combination failed (%v); defaulting to a flat stance", err))
		dec.Degraded = true
		combined = domain.CombinedSignal{
			Direction: domain.DirectionFlat,
			Method:    string(o.cfg.Combiner.Method),
		}
	}
	dec.Signal = combined
	rationale = append(rationale, fmt.Sprintf("combined %d signal(s) via %s: %s with strength %.2f",
		len(req.Signals), combined.Method, combined.Direction, combined.Strength))

	confID, indicator := o.confidenceFor(weights, req.Metrics)
	dec.Confidence = indicator
	if confID == "" {
		rationale = append(rationale, "no trailing metrics available; confidence defaults to low")
	}

	if combined.Direction == domain.DirectionFlat {
		rationale = append(rationale, "flat stance: no entry, stop, or target computed")
		return o.finalize(log, dec, rationale, confID), nil
	}

	entry, err := o.entry.Compute(bars)
	if err != nil {
		log.Warn().Err(err).Str("stage", "entry_band").Msg("Entry band unavailable")
		o.recorder.RecordFailure("entry_band")
		rationale = append(rationale, fmt.Sprintf("entry band unavailable (%v); decision carries no executable levels", err))
		dec.Degraded = true
		return o.finalize(log, dec, rationale, confID), nil
	}

	tpsl, err := o.tpsl.ComputeFromBars(bars, combined.Direction, entry.Entry)
	if err != nil {
		log.Warn().Err(err).Str("stage", "tpsl").Msg("Stop/target computation failed")
		o.recorder.RecordFailure("tpsl")
		rationale = append(rationale, fmt.Sprintf("stop/target computation failed (%v); decision carries no executable levels", err))
		dec.Degraded = true
		return o.finalize(log, dec, rationale, confID), nil
	}

	dec.Levels = &domain.PriceLevels{
		EntryPrice: entry.Entry,
		EntryBand:  entry.Band,
		StopLoss:   tpsl.StopLoss,
		TakeProfit: tpsl.TakeProfit,
	}
	rationale = append(rationale, fmt.Sprintf("entry %.4f from %s, band %.4f..%.4f",
		entry.Entry, entrySource(entry), entry.Band.Low, entry.Band.High))
	rationale = append(rationale, fmt.Sprintf("stop %.4f (%s basis), target %.4f",
		tpsl.StopLoss, tpsl.StopBasis, tpsl.TakeProfit))

	plan, err := o.sizer.PlanPosition(entry.Entry, tpsl.StopLoss)
	if err != nil {
		log.Warn().Err(err).Str("stage", "size_position").Msg("Position sizing failed")
		o.recorder.RecordFailure("size_position")
		rationale = append(rationale, fmt.Sprintf("position sizing failed (%v); decision carries no position plan", err))
		dec.Degraded = true
		return o.finalize(log, dec, rationale, confID), nil
	}
	dec.Plan = &plan
	rationale = append(rationale, fmt.Sprintf("risking %.2f for quantity %.4f (notional %.2f)",
		plan.RiskAmount, plan.Quantity, plan.NotionalValue))

	return o.finalize(log, dec, rationale, confID), nil
}

// scoreStrategies turns rolling metrics into combination weights.
func (o *Orchestrator) scoreStrategies(metrics map[string]domain.StrategyMetrics) (map[string]float64, error) {
	list := make([]domain.StrategyMetrics, 0, len(metrics))
	for _, m := range metrics {
		list = append(list, m)
	}
	scores := o.ranker.Score(list)
	return o.ranker.Weights(scores)
}

// confidenceFor grades the decision by the metrics of its dominant strategy:
// the top-weighted one when weights exist, otherwise the best Sharpe. Ties
// break on strategy ID so the pick is stable.
func (o *Orchestrator) confidenceFor(weights map[string]float64, metrics map[string]domain.StrategyMetrics) (string, domain.ConfidenceIndicator) {
	if len(metrics) == 0 {
		return "", domain.ConfidenceIndicator{
			Tier:              domain.TierLow,
			Score:             0,
			RecommendedAction: confidence.ActionSkip,
		}
	}

	pick := ""
	if len(weights) > 0 {
		best := -1.0
		for _, id := range sortedKeys(weights) {
			if _, ok := metrics[id]; !ok {
				continue
			}
			if weights[id] > best {
				best, pick = weights[id], id
			}
		}
	}
	if pick == "" {
		best := 0.0
		for _, id := range sortedMetricKeys(metrics) {
			if pick == "" || metrics[id].Sharpe > best {
				best, pick = metrics[id].Sharpe, id
			}
		}
	}

	return pick, o.scorer.Score(metrics[pick])
}

func (o *Orchestrator) finalize(log zerolog.Logger, dec domain.DailyDecision, rationale []string, confID string) domain.DailyDecision {
	line := fmt.Sprintf("confidence %s (score %.2f): %s", dec.Confidence.Tier, dec.Confidence.Score, dec.Confidence.RecommendedAction)
	if confID != "" {
		line = fmt.Sprintf("confidence %s from %s metrics (score %.2f): %s",
			dec.Confidence.Tier, confID, dec.Confidence.Score, dec.Confidence.RecommendedAction)
	}
	dec.Rationale = append(rationale, line)

	log.Info().
		Str("decision_id", dec.ID).
		Str("direction", dec.Signal.Direction.String()).
		Float64("strength", dec.Signal.Strength).
		Str("confidence", string(dec.Confidence.Tier)).
		Bool("has_levels", dec.Levels != nil).
		Bool("has_plan", dec.Plan != nil).
		Bool("degraded", dec.Degraded).
		Msg("Decision cycle complete")

	return dec
}

// clampToAsOf drops bars after the decision timestamp.
func clampToAsOf(bars []domain.Bar, asOf time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, bar := range bars {
		if !bar.Timestamp.After(asOf) {
			out = append(out, bar)
		}
	}
	return out
}

func entrySource(band levels.EntryBand) string {
	if band.UsedVWAP {
		return "vwap"
	}
	return "typical price"
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMetricKeys(m map[string]domain.StrategyMetrics) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
