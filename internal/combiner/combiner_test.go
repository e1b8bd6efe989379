package combiner

import (
	"errors"
	"math"
	"testing"

	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/ranking"
)

func newTestCombiner(method Method) *Combiner {
	cfg := DefaultConfig()
	cfg.Method = method
	return New(cfg, ranking.NewRanker(ranking.DefaultConfig()))
}

func long(strength float64) domain.Signal {
	return domain.Signal{Direction: domain.DirectionLong, Strength: strength}
}

func short(strength float64) domain.Signal {
	return domain.Signal{Direction: domain.DirectionShort, Strength: strength}
}

func flat() domain.Signal {
	return domain.Signal{Direction: domain.DirectionFlat, Strength: 0}
}

func TestMajorityVoteTwoOfThree(t *testing.T) {
	c := newTestCombiner(MethodMajorityVote)

	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"a": long(0.8),
		"b": long(0.5),
		"c": short(-0.6),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionLong {
		t.Errorf("Expected long direction, got %s", combined.Direction)
	}
	if math.Abs(combined.Strength-2.0/3.0) > 1e-9 {
		t.Errorf("Expected strength 2/3, got %.6f", combined.Strength)
	}
}

func TestMajorityVoteTieResolvesFlat(t *testing.T) {
	c := newTestCombiner(MethodMajorityVote)

	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"a": long(0.8),
		"b": short(-0.7),
		"c": flat(),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionFlat {
		t.Errorf("Expected flat on a long/short tie, got %s", combined.Direction)
	}
	if combined.Strength != 0 {
		t.Errorf("Expected zero strength when flat, got %g", combined.Strength)
	}
}

func TestMajorityVoteBelowThresholdResolvesFlat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodMajorityVote
	cfg.MajorityThreshold = 0.75
	c := New(cfg, ranking.NewRanker(ranking.DefaultConfig()))

	// 2 of 3 is a unique plurality but only 66%, under the 75% bar.
	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"a": long(0.8),
		"b": long(0.5),
		"c": short(-0.6),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionFlat {
		t.Errorf("Expected flat below majority threshold, got %s", combined.Direction)
	}
}

func TestSingleStrategyRoundTrip(t *testing.T) {
	original := short(-0.63)

	for _, method := range []Method{MethodSimpleAverage, MethodWeightedAverage, MethodSharpeWeighted, MethodMajorityVote} {
		t.Run(string(method), func(t *testing.T) {
			c := newTestCombiner(method)

			combined, err := c.Combine(Input{Signals: map[string]domain.Signal{"solo": original}})
			if err != nil {
				t.Fatalf("Combine failed: %v", err)
			}

			if combined.Direction != original.Direction {
				t.Errorf("Expected direction %s, got %s", original.Direction, combined.Direction)
			}
			if combined.Strength != original.Strength {
				t.Errorf("Expected strength %g, got %g", original.Strength, combined.Strength)
			}
		})
	}
}

func TestAllFlatCombinesFlat(t *testing.T) {
	c := newTestCombiner(MethodSimpleAverage)

	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"a": flat(),
		"b": flat(),
		"c": flat(),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionFlat || combined.Strength != 0 {
		t.Errorf("Expected flat with zero strength, got %s %.4f", combined.Direction, combined.Strength)
	}
	if combined.ConfidenceWeight != 1 {
		t.Errorf("Expected full flat consensus, got %.4f", combined.ConfidenceWeight)
	}
}

func TestEmptySignalSetIsHardFailure(t *testing.T) {
	c := newTestCombiner(MethodSimpleAverage)

	_, err := c.Combine(Input{Signals: map[string]domain.Signal{}})
	if !errors.Is(err, domain.ErrEmptySignalSet) {
		t.Fatalf("Expected ErrEmptySignalSet, got %v", err)
	}
}

func TestSimpleAverageEpsilonBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodSimpleAverage
	cfg.Epsilon = 0.2
	c := New(cfg, ranking.NewRanker(ranking.DefaultConfig()))

	// Mean strength is 0.15, inside the 0.2 dead band.
	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"a": long(0.6),
		"b": short(-0.3),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionFlat {
		t.Errorf("Expected flat inside epsilon band, got %s", combined.Direction)
	}

	// Lower epsilon and the same mean flips to long.
	cfg.Epsilon = 0.1
	c = New(cfg, ranking.NewRanker(ranking.DefaultConfig()))
	combined, err = c.Combine(Input{Signals: map[string]domain.Signal{
		"a": long(0.6),
		"b": short(-0.3),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if combined.Direction != domain.DirectionLong {
		t.Errorf("Expected long outside epsilon band, got %s", combined.Direction)
	}
	if math.Abs(combined.Strength-0.15) > 1e-9 {
		t.Errorf("Expected strength 0.15, got %.6f", combined.Strength)
	}
}

func TestWeightedAverage(t *testing.T) {
	c := newTestCombiner(MethodWeightedAverage)

	combined, err := c.Combine(Input{
		Signals: map[string]domain.Signal{
			"a": long(0.8),
			"b": short(-0.4),
			"c": long(0.6),
		},
		Weights: map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionLong {
		t.Errorf("Expected long, got %s", combined.Direction)
	}
	if math.Abs(combined.Strength-0.4) > 1e-9 {
		t.Errorf("Expected strength 0.40, got %.6f", combined.Strength)
	}
	if math.Abs(combined.ConfidenceWeight-0.7) > 1e-9 {
		t.Errorf("Expected agreement 0.70, got %.6f", combined.ConfidenceWeight)
	}
}

func TestWeightedAverageRejectsNegativeWeight(t *testing.T) {
	c := newTestCombiner(MethodWeightedAverage)

	_, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"a": long(0.5), "b": short(-0.5)},
		Weights: map[string]float64{"a": 1.2, "b": -0.2},
	})

	var weightErr *domain.InvalidWeightError
	if !errors.As(err, &weightErr) {
		t.Fatalf("Expected InvalidWeightError, got %v", err)
	}
	if weightErr.StrategyID != "b" {
		t.Errorf("Expected error to name strategy b, got %q", weightErr.StrategyID)
	}
}

func TestWeightedAverageRejectsMissingWeights(t *testing.T) {
	c := newTestCombiner(MethodWeightedAverage)

	_, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"a": long(0.5), "b": short(-0.5)},
	})

	var weightErr *domain.InvalidWeightError
	if !errors.As(err, &weightErr) {
		t.Fatalf("Expected InvalidWeightError for nil weights, got %v", err)
	}
}

func TestWeightedAverageRenormalizesUnnormalizedWeights(t *testing.T) {
	c := newTestCombiner(MethodWeightedAverage)

	// Weights sum to 4, not 1; combination must renormalize, not reject.
	combined, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"a": long(0.8), "b": long(0.4)},
		Weights: map[string]float64{"a": 3, "b": 1},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	expected := 0.75*0.8 + 0.25*0.4
	if math.Abs(combined.Strength-expected) > 1e-9 {
		t.Errorf("Expected strength %.4f from renormalized weights, got %.6f", expected, combined.Strength)
	}
}

func TestMissingSignalExcludedAndWeightsRenormalized(t *testing.T) {
	c := newTestCombiner(MethodWeightedAverage)

	// Strategy b produced no signal at this bar; its weight must drop out
	// and the remainder renormalize rather than default b to strength 0.
	combined, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"a": long(0.8), "c": long(0.6)},
		Weights: map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	expected := (0.5*0.8 + 0.2*0.6) / 0.7
	if math.Abs(combined.Strength-expected) > 1e-9 {
		t.Errorf("Expected strength %.6f, got %.6f", expected, combined.Strength)
	}

	var weightSum float64
	for _, contrib := range combined.Contributions {
		if contrib.StrategyID == "b" {
			t.Error("Missing strategy must not appear in contributions")
		}
		weightSum += contrib.Weight
	}
	if math.Abs(weightSum-1.0) > 1e-9 {
		t.Errorf("Expected contribution weights to sum to 1.0, got %.12f", weightSum)
	}
}

func TestSharpeWeightedFavorsBetterStrategy(t *testing.T) {
	c := newTestCombiner(MethodSharpeWeighted)

	goodReturns := make([]float64, 60)
	badReturns := make([]float64, 60)
	for i := range goodReturns {
		if i%2 == 0 {
			goodReturns[i] = 0.02
			badReturns[i] = -0.02
		} else {
			goodReturns[i] = 0.005
			badReturns[i] = 0.002
		}
	}

	combined, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"good": long(1.0), "bad": short(-1.0)},
		Returns: map[string][]float64{"good": goodReturns, "bad": badReturns},
	})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	if combined.Direction != domain.DirectionLong {
		t.Errorf("Expected the higher-sharpe strategy to win, got %s", combined.Direction)
	}

	weights := make(map[string]float64)
	for _, contrib := range combined.Contributions {
		weights[contrib.StrategyID] = contrib.Weight
	}
	if weights["good"] <= weights["bad"] {
		t.Errorf("Expected good strategy to outweigh bad, got %.4f vs %.4f", weights["good"], weights["bad"])
	}
}

func TestSharpeWeightedWithoutReturnsFails(t *testing.T) {
	c := newTestCombiner(MethodSharpeWeighted)

	_, err := c.Combine(Input{
		Signals: map[string]domain.Signal{"a": long(0.5), "b": short(-0.5)},
	})

	var dataErr *domain.InsufficientDataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("Expected InsufficientDataError, got %v", err)
	}
}

func TestCombineSeriesSkipsMissingBars(t *testing.T) {
	c := newTestCombiner(MethodSimpleAverage)

	series := map[string]Series{
		"a": {0: long(0.8), 1: long(0.6)},
		"b": {1: short(-0.2)},
	}

	out, err := c.CombineSeries(series, nil)
	if err != nil {
		t.Fatalf("CombineSeries failed: %v", err)
	}

	// Bar 0 has only strategy a: passthrough.
	if out[0].Strength != 0.8 || out[0].Direction != domain.DirectionLong {
		t.Errorf("Expected bar 0 passthrough of a, got %s %.4f", out[0].Direction, out[0].Strength)
	}
	// Bar 1 averages both strategies.
	if math.Abs(out[1].Strength-0.2) > 1e-9 {
		t.Errorf("Expected bar 1 strength 0.2, got %.6f", out[1].Strength)
	}
}

func TestCombineSeriesRejectsSharpeWeighted(t *testing.T) {
	c := newTestCombiner(MethodSharpeWeighted)

	_, err := c.CombineSeries(map[string]Series{"a": {0: long(0.5)}}, nil)
	var confErr *domain.InvalidConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected InvalidConfigurationError, got %v", err)
	}
}

func TestContributionsSortedByStrategy(t *testing.T) {
	c := newTestCombiner(MethodSimpleAverage)

	combined, err := c.Combine(Input{Signals: map[string]domain.Signal{
		"zeta":  long(0.1),
		"alpha": long(0.2),
		"mid":   long(0.3),
	}})
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	order := []string{"alpha", "mid", "zeta"}
	for i, contrib := range combined.Contributions {
		if contrib.StrategyID != order[i] {
			t.Errorf("Expected contribution %d to be %s, got %s", i, order[i], contrib.StrategyID)
		}
	}
}
