package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDecisionCounts(t *testing.T) {
	rec := NewWith(prometheus.NewRegistry())

	rec.RecordDecision("BTCUSDT", "long")
	rec.RecordDecision("BTCUSDT", "long")
	rec.RecordDecision("ETHUSDT", "flat")

	if got := testutil.ToFloat64(rec.decisionsTotal.WithLabelValues("BTCUSDT", "long")); got != 2 {
		t.Errorf("Expected 2 long BTCUSDT decisions, got %v", got)
	}
	if got := testutil.ToFloat64(rec.decisionsTotal.WithLabelValues("ETHUSDT", "flat")); got != 1 {
		t.Errorf("Expected 1 flat ETHUSDT decision, got %v", got)
	}
}

func TestRecordDegradedAndFailures(t *testing.T) {
	rec := NewWith(prometheus.NewRegistry())

	rec.RecordDegraded()
	rec.RecordFailure("combine_signals")
	rec.RecordFailure("combine_signals")

	if got := testutil.ToFloat64(rec.degradedTotal); got != 1 {
		t.Errorf("Expected 1 degraded decision, got %v", got)
	}
	if got := testutil.ToFloat64(rec.failuresTotal.WithLabelValues("combine_signals")); got != 2 {
		t.Errorf("Expected 2 combine_signals failures, got %v", got)
	}
}

func TestRecordCacheHitsAndMisses(t *testing.T) {
	rec := NewWith(prometheus.NewRegistry())

	rec.RecordCacheHit("bars")
	rec.RecordCacheMiss("bars")
	rec.RecordCacheMiss("metrics")

	if got := testutil.ToFloat64(rec.cacheHitsTotal.WithLabelValues("bars")); got != 1 {
		t.Errorf("Expected 1 bars hit, got %v", got)
	}
	if got := testutil.ToFloat64(rec.cacheMissesTotal.WithLabelValues("bars")); got != 1 {
		t.Errorf("Expected 1 bars miss, got %v", got)
	}
	if got := testutil.ToFloat64(rec.cacheMissesTotal.WithLabelValues("metrics")); got != 1 {
		t.Errorf("Expected 1 metrics miss, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder

	rec.RecordDecision("BTCUSDT", "long")
	rec.RecordDegraded()
	rec.RecordFailure("entry_band")
	rec.RecordCycleDuration(42 * time.Millisecond)
	rec.RecordCacheHit("bars")
	rec.RecordCacheMiss("bars")
}
