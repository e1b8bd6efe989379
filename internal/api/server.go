// Package api exposes the decision engine over HTTP: decision queries and
// runs, bar ingestion, strategy metrics, health, Prometheus metrics, and a
// WebSocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"trading-decision-engine/internal/auth"
	"trading-decision-engine/internal/cache"
	"trading-decision-engine/internal/database"
	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/events"
	"trading-decision-engine/internal/marketdata"
	"trading-decision-engine/internal/telemetry"
)

// RateLimiter provides simple in-memory rate limiting per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// EngineAPI interface defines what the decision engine exposes to the API
type EngineAPI interface {
	RunCycle(ctx context.Context, symbol string, asOf time.Time) (domain.DailyDecision, error)
	StrategyNames() []string
}

// DecisionStore is the persistence the read handlers use. Implemented by
// database.Repository.
type DecisionStore interface {
	HealthCheck(ctx context.Context) error
	GetDecision(ctx context.Context, id string) (domain.DailyDecision, error)
	ListDecisions(ctx context.Context, symbol string, limit, offset int) ([]database.DecisionRecord, error)
	MetricsHistory(ctx context.Context, strategyID string, limit int) ([]domain.StrategyMetrics, error)
	GetRecentSystemEvents(ctx context.Context, limit int) ([]*database.SystemEvent, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ProductionMode bool
	// Symbols is the configured universe, used when a run request names
	// no symbol.
	Symbols []string
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	store        DecisionStore
	provider     *marketdata.Provider
	engine       EngineAPI
	eventBus     *events.EventBus
	config       ServerConfig
	authService  *auth.Service
	authEnabled  bool
	cacheService *cache.CacheService
	rateLimiter  *RateLimiter
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	store DecisionStore,
	provider *marketdata.Provider,
	engineAPI EngineAPI,
	eventBus *events.EventBus,
	authService *auth.Service, // Can be nil if auth is disabled
	cacheService *cache.CacheService, // Can be nil if redis is disabled
) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware. A wildcard origin cannot carry credentials.
	corsConfig := cors.DefaultConfig()
	allowAll := len(config.AllowedOrigins) == 0
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		store:        store,
		provider:     provider,
		engine:       engineAPI,
		eventBus:     eventBus,
		config:       config,
		authService:  authService,
		authEnabled:  authService != nil,
		cacheService: cacheService,
		rateLimiter:  NewRateLimiter(120, time.Minute), // 120 requests per minute per client
	}

	server.setupRoutes()

	// Initialize WebSocket hub for real-time event broadcasting
	if eventBus != nil {
		InitWebSocket(eventBus)
	}

	return server
}

// rateLimitMiddleware limits requests per client IP
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please slow down.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/health", s.handleHealth)

	// Prometheus scrape endpoint
	s.router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// Auth routes (public, no authentication required)
	if s.authEnabled {
		authHandlers := auth.NewHandlers(s.authService)
		authGroup := s.router.Group("/api/auth")
		authHandlers.RegisterRoutes(authGroup, s.authService.GetJWTManager())
	}

	// Auth status endpoint (always available, returns whether auth is enabled)
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"auth_enabled": s.authEnabled,
		})
	})

	// API routes (protected when auth is enabled)
	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	if s.authEnabled {
		api.Use(auth.Middleware(s.authService.GetJWTManager()))
	}

	{
		// Decision endpoints
		api.POST("/decisions/run", s.handleRunDecisions)
		api.GET("/decisions/latest", s.handleLatestDecision)
		api.GET("/decisions/:id", s.handleGetDecision)
		api.GET("/decisions", s.handleListDecisions)

		// Strategy endpoints
		api.GET("/strategies", s.handleGetStrategies)
		api.GET("/strategies/:id/metrics", s.handleStrategyMetrics)

		// Market data endpoints
		api.POST("/bars", s.handleIngestBars)

		// System event log
		api.GET("/events", s.handleGetEvents)
	}

	// WebSocket endpoint. Token may arrive as a query parameter since
	// browsers cannot set headers on the handshake.
	s.router.GET("/ws", s.handleWebSocket)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Check database health
	dbHealthy := true
	if err := s.store.HealthCheck(ctx); err != nil {
		dbHealthy = false
	}

	cacheStatus := "disabled"
	if s.cacheService != nil {
		if s.cacheService.IsHealthy() {
			cacheStatus = "healthy"
		} else {
			cacheStatus = "degraded"
		}
	}

	if !dbHealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"cache":    cacheStatus,
		})
		return
	}

	status := "healthy"
	if cacheStatus == "degraded" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"database":   "healthy",
		"cache":      cacheStatus,
		"ws_clients": WSClientCount(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// getUserID returns the user ID from the context, or a fixed operator ID
// when auth is disabled
func (s *Server) getUserID(c *gin.Context) string {
	if !s.authEnabled {
		return "00000000-0000-0000-0000-000000000000"
	}
	return auth.GetUserID(c)
}
