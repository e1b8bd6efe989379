package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-decision-engine/internal/database"
	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/marketdata"
)

// ============================================================================
// DECISION HANDLERS
// ============================================================================

// runDecisionsRequest triggers decision cycles. An empty symbol means the
// whole configured universe; an empty as_of means now.
type runDecisionsRequest struct {
	Symbol string `json:"symbol"`
	AsOf   string `json:"as_of"`
}

// handleRunDecisions runs the decision cycle on demand
// POST /api/decisions/run
func (s *Server) handleRunDecisions(c *gin.Context) {
	var req runDecisionsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := parseTimestamp(req.AsOf)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "as_of must be RFC3339 or YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	symbols := s.config.Symbols
	if req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	if len(symbols) == 0 {
		errorResponse(c, http.StatusBadRequest, "no symbol given and no symbols configured")
		return
	}

	if len(symbols) == 1 {
		dec, err := s.engine.RunCycle(c.Request.Context(), symbols[0], asOf)
		if err != nil {
			errorResponse(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		successResponse(c, dec)
		return
	}

	decisions := make([]domain.DailyDecision, 0, len(symbols))
	failures := make(map[string]string)
	for _, symbol := range symbols {
		dec, err := s.engine.RunCycle(c.Request.Context(), symbol, asOf)
		if err != nil {
			failures[symbol] = err.Error()
			continue
		}
		decisions = append(decisions, dec)
	}

	successResponse(c, gin.H{
		"decisions": decisions,
		"failures":  failures,
	})
}

// handleLatestDecision returns the most recent decision for a symbol
// GET /api/decisions/latest?symbol=BTCUSDT
func (s *Server) handleLatestDecision(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	dec, err := s.provider.LatestDecision(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no decision for "+symbol)
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load decision")
		return
	}

	successResponse(c, dec)
}

// handleGetDecision returns one decision by ID
// GET /api/decisions/:id
func (s *Server) handleGetDecision(c *gin.Context) {
	id := c.Param("id")

	dec, err := s.store.GetDecision(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "decision not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load decision")
		return
	}

	successResponse(c, dec)
}

// handleListDecisions lists decision summaries, newest first
// GET /api/decisions?symbol=BTCUSDT&limit=50&offset=0
func (s *Server) handleListDecisions(c *gin.Context) {
	symbol := c.Query("symbol")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		errorResponse(c, http.StatusBadRequest, "offset must be non-negative")
		return
	}

	records, err := s.store.ListDecisions(c.Request.Context(), symbol, limit, offset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list decisions")
		return
	}

	successResponse(c, gin.H{
		"decisions": records,
		"count":     len(records),
	})
}

// ============================================================================
// STRATEGY HANDLERS
// ============================================================================

// handleGetStrategies lists the configured strategies with their latest
// rolling metrics
// GET /api/strategies
func (s *Server) handleGetStrategies(c *gin.Context) {
	names := s.engine.StrategyNames()

	strategies := make([]gin.H, 0, len(names))
	for _, name := range names {
		entry := gin.H{"id": name}
		history, err := s.store.MetricsHistory(c.Request.Context(), name, 1)
		if err == nil && len(history) > 0 {
			entry["latest_metrics"] = history[0]
		}
		strategies = append(strategies, entry)
	}

	successResponse(c, gin.H{"strategies": strategies})
}

// handleStrategyMetrics returns the rolling metrics history for one strategy
// GET /api/strategies/:id/metrics?limit=30
func (s *Server) handleStrategyMetrics(c *gin.Context) {
	id := c.Param("id")

	known := false
	for _, name := range s.engine.StrategyNames() {
		if name == id {
			known = true
			break
		}
	}
	if !known {
		errorResponse(c, http.StatusNotFound, "unknown strategy: "+id)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil || limit < 1 || limit > 365 {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 365")
		return
	}

	history, err := s.store.MetricsHistory(c.Request.Context(), id, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load metrics history")
		return
	}

	successResponse(c, gin.H{
		"strategy_id": id,
		"metrics":     history,
	})
}

// ============================================================================
// MARKET DATA HANDLERS
// ============================================================================

type barInput struct {
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Open      float64   `json:"open" binding:"required,gt=0"`
	High      float64   `json:"high" binding:"required,gt=0"`
	Low       float64   `json:"low" binding:"required,gt=0"`
	Close     float64   `json:"close" binding:"required,gt=0"`
	Volume    float64   `json:"volume" binding:"gte=0"`
}

type ingestBarsRequest struct {
	Symbol   string     `json:"symbol" binding:"required"`
	Interval string     `json:"interval"`
	Bars     []barInput `json:"bars" binding:"required,min=1,dive"`
}

// handleIngestBars upserts daily bars for a symbol
// POST /api/bars
func (s *Server) handleIngestBars(c *gin.Context) {
	var req ingestBarsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	interval := req.Interval
	if interval == "" {
		interval = marketdata.BarInterval
	}

	bars := make([]domain.Bar, len(req.Bars))
	for i, b := range req.Bars {
		bars[i] = domain.Bar{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	count, err := s.provider.IngestBars(c.Request.Context(), req.Symbol, interval, bars)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to ingest bars")
		return
	}

	if s.eventBus != nil {
		s.eventBus.PublishBarsIngested(req.Symbol, count)
	}

	successResponse(c, gin.H{
		"symbol":   req.Symbol,
		"interval": interval,
		"ingested": count,
	})
}

// ============================================================================
// SYSTEM EVENT HANDLERS
// ============================================================================

// handleGetEvents returns the recent system event log
// GET /api/events?limit=50
func (s *Server) handleGetEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	recent, err := s.store.GetRecentSystemEvents(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load events")
		return
	}

	successResponse(c, gin.H{"events": recent})
}

// parseTimestamp accepts RFC3339 or a bare date.
func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
