package confidence

import (
	"errors"
	"math"
	"testing"

	"trading-decision-engine/internal/domain"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	scorer, err := NewScorer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewScorer failed: %v", err)
	}
	return scorer
}

func TestTiering(t *testing.T) {
	scorer := newTestScorer(t)

	tests := []struct {
		name     string
		sharpe   float64
		winRate  float64
		maxDD    float64
		wantTier domain.ConfidenceTier
		wantAct  string
	}{
		{name: "strong metrics", sharpe: 2.0, winRate: 0.6, maxDD: -0.10, wantTier: domain.TierHigh, wantAct: ActionExecute},
		{name: "weak sharpe", sharpe: 0.2, winRate: 0.4, maxDD: -0.40, wantTier: domain.TierLow, wantAct: ActionSkip},
		{name: "deep drawdown alone", sharpe: 1.8, winRate: 0.6, maxDD: -0.35, wantTier: domain.TierLow, wantAct: ActionSkip},
		{name: "middling", sharpe: 1.0, winRate: 0.55, maxDD: -0.20, wantTier: domain.TierMedium, wantAct: ActionReduce},
		{name: "high sharpe low win rate", sharpe: 1.8, winRate: 0.45, maxDD: -0.10, wantTier: domain.TierMedium, wantAct: ActionReduce},
		{name: "exact high boundary", sharpe: 1.5, winRate: 0.5, maxDD: -0.15, wantTier: domain.TierHigh, wantAct: ActionExecute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := scorer.Score(domain.StrategyMetrics{Sharpe: tt.sharpe, WinRate: tt.winRate, MaxDrawdown: tt.maxDD})
			if out.Tier != tt.wantTier {
				t.Errorf("Expected tier %s, got %s", tt.wantTier, out.Tier)
			}
			if out.RecommendedAction != tt.wantAct {
				t.Errorf("Expected action %q, got %q", tt.wantAct, out.RecommendedAction)
			}
		})
	}
}

func TestScoreUsesFixedBounds(t *testing.T) {
	scorer := newTestScorer(t)

	m := domain.StrategyMetrics{Sharpe: 2.0, WinRate: 0.6, MaxDrawdown: -0.10}
	out := scorer.Score(m)

	// norm(sharpe)=0.75, norm(wr)=0.6, norm(|dd|)=0.2 under the fixed
	// bounds; composite 0.42 shifts to 0.72 on [0,1].
	if math.Abs(out.Score-0.72) > 1e-9 {
		t.Errorf("Expected score 0.72, got %.6f", out.Score)
	}

	// Same metrics must always score the same.
	if again := scorer.Score(m); again.Score != out.Score {
		t.Errorf("Score changed between calls: %.6f vs %.6f", out.Score, again.Score)
	}
}

func TestScoreMonotonicInMetrics(t *testing.T) {
	scorer := newTestScorer(t)

	weak := scorer.Score(domain.StrategyMetrics{Sharpe: 0.3, WinRate: 0.4, MaxDrawdown: -0.30})
	strong := scorer.Score(domain.StrategyMetrics{Sharpe: 2.2, WinRate: 0.65, MaxDrawdown: -0.08})

	if strong.Score <= weak.Score {
		t.Errorf("Expected stronger metrics to score higher: %.4f vs %.4f", strong.Score, weak.Score)
	}
}

func TestScoreClampsOutliers(t *testing.T) {
	scorer := newTestScorer(t)

	best := scorer.Score(domain.StrategyMetrics{Sharpe: 10, WinRate: 1.0, MaxDrawdown: 0})
	worst := scorer.Score(domain.StrategyMetrics{Sharpe: -5, WinRate: 0, MaxDrawdown: -0.9})

	if best.Score != 1 {
		t.Errorf("Expected clamped best score 1.0, got %.6f", best.Score)
	}
	if worst.Score != 0 {
		t.Errorf("Expected clamped worst score 0.0, got %.6f", worst.Score)
	}
}

func TestNewScorerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "negative coefficient", mutate: func(c *Config) { c.Alpha = -0.1 }},
		{name: "all zero coefficients", mutate: func(c *Config) { c.Alpha, c.Beta, c.Gamma = 0, 0, 0 }},
		{name: "inverted sharpe bounds", mutate: func(c *Config) { c.SharpeCeil = c.SharpeFloor }},
		{name: "zero drawdown ceiling", mutate: func(c *Config) { c.DrawdownCeil = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := NewScorer(cfg)
			var confErr *domain.InvalidConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("Expected InvalidConfigurationError, got %v", err)
			}
		})
	}
}
