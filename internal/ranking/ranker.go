// Package ranking scores strategies from rolling backtest metrics and
// converts the ranked scores into normalized combination weights.
package ranking

import (
	"math"
	"sort"

	"trading-decision-engine/internal/domain"
)

// Transform selects how composite scores become combination weights.
type Transform string

const (
	TransformSoftmax   Transform = "softmax"
	TransformLinear    Transform = "linear"
	TransformRankBased Transform = "rank_based"
)

// Config controls the composite score formula and the score-to-weight
// transform. Alpha, Beta and Gamma weight the normalized sharpe, win rate
// and drawdown penalty terms.
type Config struct {
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	Gamma       float64   `json:"gamma"`
	Transform   Transform `json:"transform"`
	Temperature float64   `json:"temperature"` // softmax concentration, > 0
	Decay       float64   `json:"decay"`       // rank_based decay, in (0, 1)
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:       0.4,
		Beta:        0.3,
		Gamma:       0.3,
		Transform:   TransformSoftmax,
		Temperature: 1.0,
		Decay:       0.8,
	}
}

// Ranker computes composite scores and combination weights. It is pure:
// all state lives in the config, and identical inputs produce identical
// outputs.
type Ranker struct {
	cfg Config
}

// NewRanker creates a Ranker with the given config.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg}
}

// Score computes a composite score per strategy:
//
//	alpha*norm(sharpe) + beta*norm(win_rate) - gamma*norm(|max_drawdown|)
//
// using min-max normalization across the supplied set. When every strategy
// ties on a dimension the normalized value is 0.5 for all of them. The
// returned slice is ordered by strategy ID.
func (r *Ranker) Score(metrics []domain.StrategyMetrics) []domain.StrategyScore {
	if len(metrics) == 0 {
		return nil
	}

	ordered := make([]domain.StrategyMetrics, len(metrics))
	copy(ordered, metrics)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StrategyID < ordered[j].StrategyID })

	sharpes := make([]float64, len(ordered))
	winRates := make([]float64, len(ordered))
	drawdowns := make([]float64, len(ordered))
	for i, m := range ordered {
		sharpes[i] = m.Sharpe
		winRates[i] = m.WinRate
		drawdowns[i] = math.Abs(m.MaxDrawdown)
	}

	normSharpe := MinMaxNormalize(sharpes)
	normWinRate := MinMaxNormalize(winRates)
	normDrawdown := MinMaxNormalize(drawdowns)

	scores := make([]domain.StrategyScore, len(ordered))
	for i, m := range ordered {
		scores[i] = domain.StrategyScore{
			StrategyID:  m.StrategyID,
			Sharpe:      m.Sharpe,
			WinRate:     m.WinRate,
			MaxDrawdown: m.MaxDrawdown,
			Composite:   r.cfg.Alpha*normSharpe[i] + r.cfg.Beta*normWinRate[i] - r.cfg.Gamma*normDrawdown[i],
		}
	}
	return scores
}

// Weights converts scores into a weight map via the configured transform.
// Weights are non-negative and sum to 1 over the scored set. Strategies
// without a score are simply absent from the result; an empty input yields
// an empty map.
func (r *Ranker) Weights(scores []domain.StrategyScore) (map[string]float64, error) {
	if len(scores) == 0 {
		return map[string]float64{}, nil
	}

	switch r.cfg.Transform {
	case TransformSoftmax:
		return r.softmaxWeights(scores)
	case TransformLinear:
		return r.linearWeights(scores), nil
	case TransformRankBased:
		return r.rankWeights(scores)
	default:
		return nil, &domain.InvalidConfigurationError{
			Field:  "transform",
			Value:  string(r.cfg.Transform),
			Reason: "must be one of softmax, linear, rank_based",
		}
	}
}

// ScoreAndWeight runs Score then Weights in one pass.
func (r *Ranker) ScoreAndWeight(metrics []domain.StrategyMetrics) ([]domain.StrategyScore, map[string]float64, error) {
	scores := r.Score(metrics)
	weights, err := r.Weights(scores)
	if err != nil {
		return scores, nil, err
	}
	return scores, weights, nil
}

// softmaxWeights applies exp(score/T)/sum(exp(score/T)). The max score is
// subtracted before exponentiating so large scores cannot overflow.
func (r *Ranker) softmaxWeights(scores []domain.StrategyScore) (map[string]float64, error) {
	if r.cfg.Temperature <= 0 {
		return nil, &domain.InvalidConfigurationError{
			Field:  "temperature",
			Value:  r.cfg.Temperature,
			Reason: "softmax temperature must be positive",
		}
	}

	maxScore := scores[0].Composite
	for _, s := range scores[1:] {
		if s.Composite > maxScore {
			maxScore = s.Composite
		}
	}

	weights := make(map[string]float64, len(scores))
	var sum float64
	for _, s := range scores {
		w := math.Exp((s.Composite - maxScore) / r.cfg.Temperature)
		weights[s.StrategyID] = w
		sum += w
	}
	for id := range weights {
		weights[id] /= sum
	}
	return weights, nil
}

// linearWeights clips negative scores to zero and normalizes. When every
// score is non-positive the set degrades to uniform weights.
func (r *Ranker) linearWeights(scores []domain.StrategyScore) map[string]float64 {
	weights := make(map[string]float64, len(scores))
	var sum float64
	for _, s := range scores {
		w := math.Max(0, s.Composite)
		weights[s.StrategyID] = w
		sum += w
	}

	if sum == 0 {
		uniform := 1.0 / float64(len(scores))
		for id := range weights {
			weights[id] = uniform
		}
		return weights
	}

	for id := range weights {
		weights[id] /= sum
	}
	return weights
}

// rankWeights assigns decay^rank by descending score and normalizes.
// Strategies with identical composite scores share the mean of the decay
// weights their positions span, so ties receive equal weight.
func (r *Ranker) rankWeights(scores []domain.StrategyScore) (map[string]float64, error) {
	if r.cfg.Decay <= 0 || r.cfg.Decay >= 1 {
		return nil, &domain.InvalidConfigurationError{
			Field:  "decay",
			Value:  r.cfg.Decay,
			Reason: "rank decay must be in (0, 1)",
		}
	}

	ordered := make([]domain.StrategyScore, len(scores))
	copy(ordered, scores)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Composite != ordered[j].Composite {
			return ordered[i].Composite > ordered[j].Composite
		}
		return ordered[i].StrategyID < ordered[j].StrategyID
	})

	raw := make([]float64, len(ordered))
	for i := range ordered {
		raw[i] = math.Pow(r.cfg.Decay, float64(i))
	}

	weights := make(map[string]float64, len(ordered))
	var sum float64
	for start := 0; start < len(ordered); {
		end := start
		for end+1 < len(ordered) && ordered[end+1].Composite == ordered[start].Composite {
			end++
		}
		var groupSum float64
		for i := start; i <= end; i++ {
			groupSum += raw[i]
		}
		shared := groupSum / float64(end-start+1)
		for i := start; i <= end; i++ {
			weights[ordered[i].StrategyID] = shared
			sum += shared
		}
		start = end + 1
	}

	for id := range weights {
		weights[id] /= sum
	}
	return weights, nil
}

// MinMaxNormalize maps values onto [0, 1]. A set where every value is
// identical normalizes to 0.5 for each entry.
func MinMaxNormalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}
