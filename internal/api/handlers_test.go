package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/database"
	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/marketdata"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeEngine struct {
	names   []string
	failFor map[string]error
	ran     []string
}

func (f *fakeEngine) RunCycle(ctx context.Context, symbol string, asOf time.Time) (domain.DailyDecision, error) {
	f.ran = append(f.ran, symbol)
	if err, ok := f.failFor[symbol]; ok {
		return domain.DailyDecision{}, err
	}
	return domain.DailyDecision{
		ID:     "dec-" + symbol,
		Symbol: symbol,
		AsOf:   asOf,
		Signal: domain.CombinedSignal{Direction: domain.DirectionLong, Strength: 0.5},
	}, nil
}

func (f *fakeEngine) StrategyNames() []string {
	return f.names
}

type fakeDecisionStore struct {
	healthErr error
	decisions map[string]domain.DailyDecision
	records   []database.DecisionRecord
	metrics   map[string][]domain.StrategyMetrics
	events    []*database.SystemEvent
}

func (f *fakeDecisionStore) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeDecisionStore) GetDecision(ctx context.Context, id string) (domain.DailyDecision, error) {
	dec, ok := f.decisions[id]
	if !ok {
		return domain.DailyDecision{}, database.ErrNotFound
	}
	return dec, nil
}

func (f *fakeDecisionStore) ListDecisions(ctx context.Context, symbol string, limit, offset int) ([]database.DecisionRecord, error) {
	var out []database.DecisionRecord
	for _, r := range f.records {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeDecisionStore) MetricsHistory(ctx context.Context, strategyID string, limit int) ([]domain.StrategyMetrics, error) {
	return f.metrics[strategyID], nil
}

func (f *fakeDecisionStore) GetRecentSystemEvents(ctx context.Context, limit int) ([]*database.SystemEvent, error) {
	return f.events, nil
}

// fakeBarStore backs the marketdata provider in tests.
type fakeBarStore struct {
	insertedSymbol   string
	insertedInterval string
	insertErr        error
	latest           map[string]domain.DailyDecision
}

func (f *fakeBarStore) InsertBars(ctx context.Context, symbol, interval string, bars []domain.Bar) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.insertedSymbol = symbol
	f.insertedInterval = interval
	return len(bars), nil
}

func (f *fakeBarStore) BarsWindow(ctx context.Context, symbol string, asOf time.Time, limit int) ([]domain.Bar, error) {
	return nil, nil
}

func (f *fakeBarStore) UpsertStrategyMetrics(ctx context.Context, m domain.StrategyMetrics) error {
	return nil
}

func (f *fakeBarStore) MetricsAsOf(ctx context.Context, asOf time.Time) (map[string]domain.StrategyMetrics, error) {
	return nil, nil
}

func (f *fakeBarStore) SaveDecision(ctx context.Context, dec domain.DailyDecision) error {
	return nil
}

func (f *fakeBarStore) LatestDecision(ctx context.Context, symbol string) (domain.DailyDecision, error) {
	dec, ok := f.latest[symbol]
	if !ok {
		return domain.DailyDecision{}, database.ErrNotFound
	}
	return dec, nil
}

func newTestServer(symbols []string, store *fakeDecisionStore, bars *fakeBarStore, engine *fakeEngine) *Server {
	if store == nil {
		store = &fakeDecisionStore{}
	}
	if bars == nil {
		bars = &fakeBarStore{}
	}
	if engine == nil {
		engine = &fakeEngine{names: []string{"sma_cross", "rsi_reversion"}}
	}
	provider := marketdata.NewProvider(bars, nil, nil, zerolog.Nop())
	return NewServer(ServerConfig{
		Port:           0,
		ProductionMode: true,
		Symbols:        symbols,
	}, store, provider, engine, nil, nil, nil)
}

func performRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to parse response body: %v", err)
	}
	return out
}

// ============================================================================
// RATE LIMITER TESTS
// ============================================================================

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		rl.Allow("client-a")
	}
	if rl.Allow("client-a") {
		t.Error("Fourth request should be blocked")
	}
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("client-a") {
		t.Error("First request for client-a should be allowed")
	}
	if !rl.Allow("client-b") {
		t.Error("First request for client-b should be allowed")
	}
	if rl.Allow("client-a") {
		t.Error("Second request for client-a should be blocked")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)

	rl.Allow("client-a")
	if rl.Allow("client-a") {
		t.Fatal("Second immediate request should be blocked")
	}

	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("client-a") {
		t.Error("Request after window expiry should be allowed")
	}
}

// ============================================================================
// DECISION ENDPOINT TESTS
// ============================================================================

func TestRunDecisionsSingleSymbol(t *testing.T) {
	engine := &fakeEngine{names: []string{"sma_cross"}}
	s := newTestServer(nil, nil, nil, engine)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", map[string]string{
		"symbol": "BTCUSDT",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %v", body["data"])
	}
	if data["id"] != "dec-BTCUSDT" {
		t.Errorf("Expected decision id dec-BTCUSDT, got %v", data["id"])
	}
	if len(engine.ran) != 1 || engine.ran[0] != "BTCUSDT" {
		t.Errorf("Expected one cycle for BTCUSDT, got %v", engine.ran)
	}
}

func TestRunDecisionsBadAsOf(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", map[string]string{
		"symbol": "BTCUSDT",
		"as_of":  "not-a-date",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRunDecisionsDateOnlyAsOf(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(nil, nil, nil, engine)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", map[string]string{
		"symbol": "BTCUSDT",
		"as_of":  "2025-06-01",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRunDecisionsNoSymbolsConfigured(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRunDecisionsEngineFailure(t *testing.T) {
	engine := &fakeEngine{
		failFor: map[string]error{"BTCUSDT": fmt.Errorf("no bars for BTCUSDT")},
	}
	s := newTestServer(nil, nil, nil, engine)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", map[string]string{
		"symbol": "BTCUSDT",
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}
}

func TestRunDecisionsWholeUniverse(t *testing.T) {
	engine := &fakeEngine{
		failFor: map[string]error{"ETHUSDT": fmt.Errorf("no bars for ETHUSDT")},
	}
	s := newTestServer([]string{"BTCUSDT", "ETHUSDT"}, nil, nil, engine)

	w := performRequest(s, http.MethodPost, "/api/decisions/run", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	decisions := data["decisions"].([]interface{})
	failures := data["failures"].(map[string]interface{})

	if len(decisions) != 1 {
		t.Errorf("Expected 1 decision, got %d", len(decisions))
	}
	if _, ok := failures["ETHUSDT"]; !ok {
		t.Error("Expected ETHUSDT in failures")
	}
}

func TestLatestDecisionRequiresSymbol(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions/latest", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestLatestDecisionFound(t *testing.T) {
	bars := &fakeBarStore{
		latest: map[string]domain.DailyDecision{
			"BTCUSDT": {ID: "latest-1", Symbol: "BTCUSDT"},
		},
	}
	s := newTestServer(nil, nil, bars, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions/latest?symbol=BTCUSDT", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	if data["id"] != "latest-1" {
		t.Errorf("Expected decision id latest-1, got %v", data["id"])
	}
}

func TestLatestDecisionNotFound(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions/latest?symbol=BTCUSDT", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetDecisionByID(t *testing.T) {
	store := &fakeDecisionStore{
		decisions: map[string]domain.DailyDecision{
			"abc-123": {ID: "abc-123", Symbol: "BTCUSDT"},
		},
	}
	s := newTestServer(nil, store, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions/abc-123", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	if data["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %v", data["symbol"])
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListDecisionsRejectsBadLimit(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions?limit=1000", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListDecisionsFiltersBySymbol(t *testing.T) {
	store := &fakeDecisionStore{
		records: []database.DecisionRecord{
			{ID: "a", Symbol: "BTCUSDT"},
			{ID: "b", Symbol: "ETHUSDT"},
		},
	}
	s := newTestServer(nil, store, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/decisions?symbol=BTCUSDT", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	if count := data["count"].(float64); count != 1 {
		t.Errorf("Expected count 1, got %v", count)
	}
}

// ============================================================================
// STRATEGY ENDPOINT TESTS
// ============================================================================

func TestGetStrategiesListsAll(t *testing.T) {
	engine := &fakeEngine{names: []string{"sma_cross", "rsi_reversion"}}
	store := &fakeDecisionStore{
		metrics: map[string][]domain.StrategyMetrics{
			"sma_cross": {{StrategyID: "sma_cross", Sharpe: 1.2}},
		},
	}
	s := newTestServer(nil, store, nil, engine)

	w := performRequest(s, http.MethodGet, "/api/strategies", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	strategies := data["strategies"].([]interface{})
	if len(strategies) != 2 {
		t.Fatalf("Expected 2 strategies, got %d", len(strategies))
	}

	first := strategies[0].(map[string]interface{})
	if first["id"] != "sma_cross" {
		t.Errorf("Expected first strategy sma_cross, got %v", first["id"])
	}
	if first["latest_metrics"] == nil {
		t.Error("Expected latest_metrics for sma_cross")
	}
}

func TestStrategyMetricsUnknownStrategy(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/strategies/bogus/metrics", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStrategyMetricsHistory(t *testing.T) {
	engine := &fakeEngine{names: []string{"sma_cross"}}
	store := &fakeDecisionStore{
		metrics: map[string][]domain.StrategyMetrics{
			"sma_cross": {
				{StrategyID: "sma_cross", Sharpe: 1.2},
				{StrategyID: "sma_cross", Sharpe: 0.9},
			},
		},
	}
	s := newTestServer(nil, store, nil, engine)

	w := performRequest(s, http.MethodGet, "/api/strategies/sma_cross/metrics?limit=10", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	metrics := data["metrics"].([]interface{})
	if len(metrics) != 2 {
		t.Errorf("Expected 2 metric rows, got %d", len(metrics))
	}
}

func TestStrategyMetricsRejectsBadLimit(t *testing.T) {
	engine := &fakeEngine{names: []string{"sma_cross"}}
	s := newTestServer(nil, nil, nil, engine)

	w := performRequest(s, http.MethodGet, "/api/strategies/sma_cross/metrics?limit=0", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// ============================================================================
// MARKET DATA ENDPOINT TESTS
// ============================================================================

func TestIngestBarsDefaultsInterval(t *testing.T) {
	bars := &fakeBarStore{}
	s := newTestServer(nil, nil, bars, nil)

	w := performRequest(s, http.MethodPost, "/api/bars", map[string]interface{}{
		"symbol": "BTCUSDT",
		"bars": []map[string]interface{}{
			{"timestamp": "2025-06-01T00:00:00Z", "open": 100.0, "high": 110.0, "low": 95.0, "close": 105.0, "volume": 1000.0},
			{"timestamp": "2025-06-02T00:00:00Z", "open": 105.0, "high": 112.0, "low": 101.0, "close": 108.0, "volume": 900.0},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	if ingested := data["ingested"].(float64); ingested != 2 {
		t.Errorf("Expected 2 bars ingested, got %v", ingested)
	}
	if data["interval"] != marketdata.BarInterval {
		t.Errorf("Expected interval %s, got %v", marketdata.BarInterval, data["interval"])
	}
	if bars.insertedSymbol != "BTCUSDT" {
		t.Errorf("Expected store insert for BTCUSDT, got %s", bars.insertedSymbol)
	}
}

func TestIngestBarsRejectsEmptyBody(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodPost, "/api/bars", map[string]interface{}{
		"symbol": "BTCUSDT",
		"bars":   []map[string]interface{}{},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestIngestBarsRejectsNonPositivePrices(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodPost, "/api/bars", map[string]interface{}{
		"symbol": "BTCUSDT",
		"bars": []map[string]interface{}{
			{"timestamp": "2025-06-01T00:00:00Z", "open": 100.0, "high": 110.0, "low": 95.0, "close": -5.0, "volume": 1000.0},
		},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestIngestBarsStoreFailure(t *testing.T) {
	bars := &fakeBarStore{insertErr: errors.New("connection refused")}
	s := newTestServer(nil, nil, bars, nil)

	w := performRequest(s, http.MethodPost, "/api/bars", map[string]interface{}{
		"symbol": "BTCUSDT",
		"bars": []map[string]interface{}{
			{"timestamp": "2025-06-01T00:00:00Z", "open": 100.0, "high": 110.0, "low": 95.0, "close": 105.0, "volume": 1000.0},
		},
	})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

// ============================================================================
// SYSTEM TESTS
// ============================================================================

func TestGetEvents(t *testing.T) {
	store := &fakeDecisionStore{
		events: []*database.SystemEvent{
			{ID: 1, EventType: "DECISION_PUBLISHED", Source: "engine"},
			{ID: 2, EventType: "RUN_STARTED", Source: "scheduler"},
		},
	}
	s := newTestServer(nil, store, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/events", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	data := body["data"].(map[string]interface{})
	evs := data["events"].([]interface{})
	if len(evs) != 2 {
		t.Errorf("Expected 2 events, got %d", len(evs))
	}
}

func TestHealthHealthy(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", body["status"])
	}
	if body["database"] != "healthy" {
		t.Errorf("Expected database healthy, got %v", body["database"])
	}
	if body["cache"] != "disabled" {
		t.Errorf("Expected cache disabled, got %v", body["cache"])
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	store := &fakeDecisionStore{healthErr: errors.New("connection refused")}
	s := newTestServer(nil, store, nil, nil)

	w := performRequest(s, http.MethodGet, "/health", nil)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "unhealthy" {
		t.Errorf("Expected status unhealthy, got %v", body["status"])
	}
}

func TestAuthStatusDisabled(t *testing.T) {
	s := newTestServer(nil, nil, nil, nil)

	w := performRequest(s, http.MethodGet, "/api/auth/status", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["auth_enabled"] != false {
		t.Errorf("Expected auth_enabled false, got %v", body["auth_enabled"])
	}
}
