// Package combiner merges per-strategy signals into one consensus signal.
// Four methods are supported: plain averaging, externally weighted
// averaging, sharpe-weighted averaging over trailing realized returns,
// and majority voting.
package combiner

import (
	"math"
	"sort"

	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/metrics"
	"trading-decision-engine/internal/ranking"
)

// Method selects the combination algorithm.
type Method string

const (
	MethodSimpleAverage   Method = "simple_average"
	MethodWeightedAverage Method = "weighted_average"
	MethodSharpeWeighted  Method = "sharpe_weighted"
	MethodMajorityVote    Method = "majority_vote"
)

// Config controls combination behavior. Epsilon is the dead band around
// zero: an averaged strength with magnitude at or below it maps to flat,
// so marginal noise cannot flip the direction day to day.
type Config struct {
	Method            Method  `json:"method"`
	Epsilon           float64 `json:"epsilon"`
	MajorityThreshold float64 `json:"majority_threshold"` // winning fraction of present strategies required
	SharpeLookback    int     `json:"sharpe_lookback"`    // trailing return bars for sharpe_weighted
}

// DefaultConfig returns the standard combination configuration.
func DefaultConfig() Config {
	return Config{
		Method:            MethodSimpleAverage,
		Epsilon:           0.05,
		MajorityThreshold: 0.5,
		SharpeLookback:    90,
	}
}

// Input carries everything one combination pass may need. Signals holds
// the strategies that actually produced output at this bar; a strategy
// missing from the map is excluded from combination, never defaulted to
// zero strength. Weights feeds weighted_average and Returns feeds
// sharpe_weighted; both may be nil for the other methods.
type Input struct {
	Signals map[string]domain.Signal
	Weights map[string]float64
	Returns map[string][]float64
}

// Series is a strategy's signal series keyed by bar index. A missing
// index means the strategy produced no signal for that bar.
type Series map[int]domain.Signal

// Combiner merges strategy signals according to its config. It is pure
// and safe for concurrent use across decision cycles.
type Combiner struct {
	cfg    Config
	ranker *ranking.Ranker
}

// New creates a Combiner. The ranker supplies the score-to-weight
// transform used by the sharpe_weighted method.
func New(cfg Config, ranker *ranking.Ranker) *Combiner {
	return &Combiner{cfg: cfg, ranker: ranker}
}

// Combine merges the signals present at one bar into a consensus signal.
// A single present strategy passes through unchanged regardless of
// method. An empty signal set is a hard failure.
func (c *Combiner) Combine(in Input) (domain.CombinedSignal, error) {
	if err := c.validate(); err != nil {
		return domain.CombinedSignal{}, err
	}
	if len(in.Signals) == 0 {
		return domain.CombinedSignal{}, domain.ErrEmptySignalSet
	}

	ids := sortedIDs(in.Signals)
	if len(ids) == 1 {
		return passthrough(ids[0], in.Signals[ids[0]], c.cfg.Method), nil
	}

	switch c.cfg.Method {
	case MethodSimpleAverage:
		return c.average(ids, in.Signals, uniformWeights(ids)), nil
	case MethodWeightedAverage:
		weights, err := normalizeExternal(ids, in.Weights)
		if err != nil {
			return domain.CombinedSignal{}, err
		}
		return c.average(ids, in.Signals, weights), nil
	case MethodSharpeWeighted:
		weights, err := c.sharpeWeights(ids, in.Returns)
		if err != nil {
			return domain.CombinedSignal{}, err
		}
		return c.average(ids, in.Signals, weights), nil
	case MethodMajorityVote:
		return c.majorityVote(ids, in.Signals), nil
	default:
		return domain.CombinedSignal{}, &domain.InvalidConfigurationError{
			Field:  "method",
			Value:  string(c.cfg.Method),
			Reason: "must be one of simple_average, weighted_average, sharpe_weighted, majority_vote",
		}
	}
}

// CombineSeries combines aligned signal series bar by bar. Bars where no
// strategy produced a signal are absent from the result, so adding a new
// strategy mid-history never changes earlier combined output. The
// sharpe_weighted method is rejected here because it needs per-bar
// trailing returns; combine those bars individually via Combine.
func (c *Combiner) CombineSeries(series map[string]Series, weights map[string]float64) (map[int]domain.CombinedSignal, error) {
	if c.cfg.Method == MethodSharpeWeighted {
		return nil, &domain.InvalidConfigurationError{
			Field:  "method",
			Value:  string(MethodSharpeWeighted),
			Reason: "sharpe_weighted needs trailing returns per bar; use Combine per bar instead",
		}
	}

	bars := map[int]struct{}{}
	for _, s := range series {
		for bar := range s {
			bars[bar] = struct{}{}
		}
	}

	out := make(map[int]domain.CombinedSignal, len(bars))
	for bar := range bars {
		signals := make(map[string]domain.Signal)
		for id, s := range series {
			if sig, ok := s[bar]; ok {
				signals[id] = sig
			}
		}
		combined, err := c.Combine(Input{Signals: signals, Weights: weights})
		if err != nil {
			return nil, err
		}
		out[bar] = combined
	}
	return out, nil
}

func (c *Combiner) validate() error {
	if c.cfg.Epsilon < 0 {
		return &domain.InvalidConfigurationError{Field: "epsilon", Value: c.cfg.Epsilon, Reason: "must be non-negative"}
	}
	if c.cfg.MajorityThreshold < 0 || c.cfg.MajorityThreshold > 1 {
		return &domain.InvalidConfigurationError{Field: "majority_threshold", Value: c.cfg.MajorityThreshold, Reason: "must be in [0, 1]"}
	}
	return nil
}

// average computes the weighted mean strength over the strategies covered
// by the weight map and maps it through the epsilon dead band. Weights
// must already be normalized over their own key set.
func (c *Combiner) average(ids []string, signals map[string]domain.Signal, weights map[string]float64) domain.CombinedSignal {
	var weightedSum float64
	contributions := make([]domain.Contribution, 0, len(ids))
	for _, id := range ids {
		w, covered := weights[id]
		if !covered {
			continue
		}
		sig := signals[id]
		weightedSum += w * sig.Strength
		contributions = append(contributions, domain.Contribution{
			StrategyID: id,
			Direction:  sig.Direction,
			Strength:   sig.Strength,
			Weight:     w,
		})
	}

	direction := domain.DirectionFlat
	strength := 0.0
	if math.Abs(weightedSum) > c.cfg.Epsilon {
		if weightedSum > 0 {
			direction = domain.DirectionLong
		} else {
			direction = domain.DirectionShort
		}
		strength = clampStrength(weightedSum)
	}

	var agreement float64
	for _, contrib := range contributions {
		if contrib.Direction == direction {
			agreement += contrib.Weight
		}
	}

	return domain.CombinedSignal{
		Direction:        direction,
		Strength:         strength,
		ConfidenceWeight: agreement,
		Method:           string(c.cfg.Method),
		Contributions:    contributions,
	}
}

// majorityVote picks the most frequent non-flat direction. The winner
// must hold a unique plurality and reach the majority threshold as a
// fraction of all present strategies; otherwise the result is flat.
func (c *Combiner) majorityVote(ids []string, signals map[string]domain.Signal) domain.CombinedSignal {
	var longVotes, shortVotes, flatVotes int
	weight := 1.0 / float64(len(ids))
	contributions := make([]domain.Contribution, 0, len(ids))
	for _, id := range ids {
		sig := signals[id]
		switch sig.Direction {
		case domain.DirectionLong:
			longVotes++
		case domain.DirectionShort:
			shortVotes++
		default:
			flatVotes++
		}
		contributions = append(contributions, domain.Contribution{
			StrategyID: id,
			Direction:  sig.Direction,
			Strength:   sig.Strength,
			Weight:     weight,
		})
	}

	total := float64(len(ids))
	direction := domain.DirectionFlat
	winnerVotes := 0
	if longVotes > shortVotes {
		direction, winnerVotes = domain.DirectionLong, longVotes
	} else if shortVotes > longVotes {
		direction, winnerVotes = domain.DirectionShort, shortVotes
	}

	fraction := float64(winnerVotes) / total
	if direction == domain.DirectionFlat || fraction < c.cfg.MajorityThreshold {
		return domain.CombinedSignal{
			Direction:        domain.DirectionFlat,
			Strength:         0,
			ConfidenceWeight: float64(flatVotes) / total,
			Method:           string(c.cfg.Method),
			Contributions:    contributions,
		}
	}

	return domain.CombinedSignal{
		Direction:        direction,
		Strength:         float64(direction) * fraction,
		ConfidenceWeight: fraction,
		Method:           string(c.cfg.Method),
		Contributions:    contributions,
	}
}

// sharpeWeights regenerates weights from trailing realized returns: the
// rolling sharpe of each strategy is min-max normalized and run through
// the ranker's score-to-weight transform. Strategies without enough
// return history are excluded entirely.
func (c *Combiner) sharpeWeights(ids []string, returns map[string][]float64) (map[string]float64, error) {
	scored := make([]string, 0, len(ids))
	sharpes := make([]float64, 0, len(ids))
	for _, id := range ids {
		window := metrics.TrailingWindow(returns[id], c.cfg.SharpeLookback)
		if len(window) < 2 {
			continue
		}
		scored = append(scored, id)
		sharpes = append(sharpes, metrics.SharpeRatio(window))
	}

	if len(scored) == 0 {
		return nil, &domain.InsufficientDataError{Required: 2, Got: 0, Subject: "sharpe-weighted combination"}
	}

	norm := ranking.MinMaxNormalize(sharpes)
	scores := make([]domain.StrategyScore, len(scored))
	for i, id := range scored {
		scores[i] = domain.StrategyScore{StrategyID: id, Sharpe: sharpes[i], Composite: norm[i]}
	}
	return c.ranker.Weights(scores)
}

// normalizeExternal validates externally supplied weights and renormalizes
// them over the strategies present at this bar. Present strategies with no
// weight entry are excluded, mirroring how unscored strategies are absent
// from ranked weight maps.
func normalizeExternal(ids []string, external map[string]float64) (map[string]float64, error) {
	if len(external) == 0 {
		return nil, &domain.InvalidWeightError{Reason: "weighted_average requires externally supplied weights"}
	}

	for _, id := range sortedWeightIDs(external) {
		w := external[id]
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &domain.InvalidWeightError{StrategyID: id, Weight: w, Reason: "weight is not finite"}
		}
		if w < 0 {
			return nil, &domain.InvalidWeightError{StrategyID: id, Weight: w, Reason: "weight is negative"}
		}
	}

	covered := make(map[string]float64)
	var sum float64
	for _, id := range ids {
		if w, ok := external[id]; ok {
			covered[id] = w
			sum += w
		}
	}
	if len(covered) == 0 {
		return nil, &domain.InvalidWeightError{Reason: "weights cover none of the present strategies"}
	}
	if sum == 0 {
		return nil, &domain.InvalidWeightError{Reason: "weights sum to zero"}
	}

	for id := range covered {
		covered[id] /= sum
	}
	return covered, nil
}

func passthrough(id string, sig domain.Signal, method Method) domain.CombinedSignal {
	return domain.CombinedSignal{
		Direction:        sig.Direction,
		Strength:         sig.Strength,
		ConfidenceWeight: 1,
		Method:           string(method),
		Contributions: []domain.Contribution{{
			StrategyID: id,
			Direction:  sig.Direction,
			Strength:   sig.Strength,
			Weight:     1,
		}},
	}
}

func uniformWeights(ids []string) map[string]float64 {
	w := 1.0 / float64(len(ids))
	weights := make(map[string]float64, len(ids))
	for _, id := range ids {
		weights[id] = w
	}
	return weights
}

func clampStrength(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func sortedIDs(signals map[string]domain.Signal) []string {
	ids := make([]string, 0, len(signals))
	for id := range signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedWeightIDs(weights map[string]float64) []string {
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
