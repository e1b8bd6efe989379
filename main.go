package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trading-decision-engine/config"
	"trading-decision-engine/internal/api"
	"trading-decision-engine/internal/auth"
	"trading-decision-engine/internal/cache"
	"trading-decision-engine/internal/database"
	"trading-decision-engine/internal/engine"
	"trading-decision-engine/internal/events"
	"trading-decision-engine/internal/logging"
	"trading-decision-engine/internal/marketdata"
	"trading-decision-engine/internal/notification"
	"trading-decision-engine/internal/scheduler"
	"trading-decision-engine/internal/strategy"
	"trading-decision-engine/internal/telemetry"
	"trading-decision-engine/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	logger := logging.New(cfg.Logging)
	logging.SetGlobal(logger)
	logger.Info().Msg("Structured logging initialized")

	// Pull secrets from Vault when enabled. Vault values win over file
	// and environment. The operator hash never passes through the config
	// struct.
	var operatorHash string
	if cfg.Vault.Enabled {
		vaultClient, err := vault.NewClient(cfg.Vault)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create vault client")
		}

		vaultCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		secrets, err := vaultClient.GetSecrets(vaultCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secrets from vault")
		}

		if secrets.JWTSecret != "" {
			cfg.Auth.JWTSecret = secrets.JWTSecret
		}
		if secrets.DatabaseURL != "" {
			cfg.Database.URL = secrets.DatabaseURL
		}
		if secrets.RedisPassword != "" {
			cfg.Redis.Password = secrets.RedisPassword
		}
		if secrets.OperatorPasswordHash != "" {
			cfg.Auth.OperatorPassword = ""
			operatorHash = secrets.OperatorPasswordHash
		}
		logger.Info().Msg("Secrets loaded from vault")
	}

	// Initialize database
	if cfg.Database.URL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := database.NewDB(database.Config{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	repo := database.NewRepository(db)

	// Initialize Redis cache. A failed connection degrades to running
	// without a cache rather than refusing to start.
	var cacheService *cache.CacheService
	if cfg.Redis.Enabled {
		cacheService, err = cache.NewCacheService(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running without cache")
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}

	// Initialize authentication
	var authService *auth.Service
	if cfg.Auth.Enabled {
		authService, err = auth.NewService(auth.Config{
			JWTSecret:            cfg.Auth.JWTSecret,
			AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
			RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
			MinPasswordLength:    cfg.Auth.MinPasswordLength,
			MaxLoginAttempts:     cfg.Auth.MaxLoginAttempts,
			LockoutDuration:      cfg.Auth.LockoutDuration,
			OperatorEmail:        cfg.Auth.OperatorEmail,
			OperatorPassword:     cfg.Auth.OperatorPassword,
			OperatorPasswordHash: operatorHash,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize authentication")
		}
		logger.Info().Str("operator", cfg.Auth.OperatorEmail).Msg("Authentication enabled")
	} else {
		logger.Warn().Msg("Authentication disabled, API is open")
	}

	// Prometheus metrics
	recorder := telemetry.New()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info().Msg("Event bus initialized")

	// Initialize notification manager
	var notifyManager *notification.Manager
	if cfg.Notification.Enabled {
		notifyManager = notification.NewManager()

		if cfg.Notification.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.Notification.Telegram.BotToken,
				ChatID:   cfg.Notification.Telegram.ChatID,
				Enabled:  cfg.Notification.Telegram.Enabled,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}

		if cfg.Notification.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.Notification.Discord.WebhookURL,
				Enabled:    cfg.Notification.Discord.Enabled,
			}))
			logger.Info().Msg("Discord notifications enabled")
		}
	}

	// Market data provider over Postgres and Redis
	var mdCache marketdata.Cache
	if cacheService != nil {
		mdCache = cacheService
	}
	provider := marketdata.NewProvider(repo, mdCache, recorder, logger)

	// Decision engine
	orch, err := engine.NewOrchestrator(cfg.Engine, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize decision orchestrator")
	}

	strategies := strategy.DefaultSet()
	svc, err := engine.NewService(orch, strategies, provider, eventBus, recorder, engine.ServiceConfig{
		LookbackDays:      cfg.Scheduler.LookbackDays,
		MetricsWindowDays: cfg.Scheduler.MetricsWindowDays,
	}, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize decision service")
	}
	logger.Info().
		Strs("strategies", svc.StrategyNames()).
		Int("lookback_days", cfg.Scheduler.LookbackDays).
		Msg("Decision engine initialized")

	// Persist selected events to the system event log and forward them
	// to the alert channels
	setupEventPersistence(eventBus, repo, notifyManager, logger)

	// Daily decision schedule
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		if len(cfg.Scheduler.Symbols) == 0 {
			logger.Warn().Msg("Scheduler enabled but no symbols configured")
		}

		sched = scheduler.New(logger)
		job := scheduler.NewDecisionJob(svc, eventBus, cfg.Scheduler.Symbols, logger)
		if err := sched.AddJob(cfg.Scheduler.Spec, job); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.Scheduler.Spec).Msg("Invalid schedule")
		}
		sched.Start()
		logger.Info().
			Str("spec", cfg.Scheduler.Spec).
			Strs("symbols", cfg.Scheduler.Symbols).
			Msg("Scheduler started")
	}

	// HTTP API
	serverConfig := api.ServerConfig{
		Port:           cfg.Server.Port,
		Host:           cfg.Server.Host,
		AllowedOrigins: splitOrigins(cfg.Server.AllowedOrigins),
		ProductionMode: !strings.EqualFold(cfg.Logging.Level, "debug"),
		Symbols:        cfg.Scheduler.Symbols,
	}

	server := api.NewServer(serverConfig, repo, provider, svc, eventBus, authService, cacheService)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start web server")
		}
	}()
	logger.Info().Str("host", serverConfig.Host).Int("port", serverConfig.Port).Msg("API listening")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}

	logger.Info().Msg("Shutdown complete")
}

// persistedEvents are the event types worth keeping in the audit log.
// High-frequency per-strategy events stay on the bus only.
var persistedEvents = map[events.EventType]bool{
	events.EventDecisionPublished: true,
	events.EventDecisionDegraded:  true,
	events.EventBarsIngested:      true,
	events.EventRunStarted:        true,
	events.EventRunFailed:         true,
	events.EventError:             true,
}

// setupEventPersistence mirrors selected bus events into the system_events
// table so operators can audit runs after the fact, and pushes the ones an
// operator would want to hear about to the alert channels.
func setupEventPersistence(eventBus *events.EventBus, repo *database.Repository, notifyManager *notification.Manager, logger zerolog.Logger) {
	eventBus.SubscribeAll(func(event events.Event) {
		if !persistedEvents[event.Type] {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		record := &database.SystemEvent{
			EventType: string(event.Type),
			Source:    eventSource(event),
			Message:   eventMessage(event),
			Data:      event.Data,
			Timestamp: event.Timestamp,
		}
		if err := repo.CreateSystemEvent(ctx, record); err != nil {
			logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to persist event")
		}

		if err := notifyEvent(notifyManager, event); err != nil {
			logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to send notification")
		}
	})
}

// notifyEvent maps bus events onto the notification channels. A nil
// manager sends nothing.
func notifyEvent(m *notification.Manager, event events.Event) error {
	symbol, _ := event.Data["symbol"].(string)
	switch event.Type {
	case events.EventDecisionPublished, events.EventDecisionDegraded:
		direction, _ := event.Data["direction"].(string)
		strength, _ := event.Data["strength"].(float64)
		return m.SendDecision(symbol, direction, strength, event.Type == events.EventDecisionDegraded)
	case events.EventRunFailed:
		reason, _ := event.Data["error"].(string)
		return m.SendRunFailed(symbol, reason)
	case events.EventError:
		msg, _ := event.Data["message"].(string)
		return m.SendError("Engine error", msg)
	default:
		return nil
	}
}

func eventSource(event events.Event) string {
	if source, ok := event.Data["source"].(string); ok && source != "" {
		return source
	}
	switch event.Type {
	case events.EventRunStarted, events.EventRunFailed:
		return "scheduler"
	case events.EventBarsIngested:
		return "api"
	default:
		return "engine"
	}
}

func eventMessage(event events.Event) string {
	symbol, _ := event.Data["symbol"].(string)
	switch event.Type {
	case events.EventDecisionPublished, events.EventDecisionDegraded:
		direction, _ := event.Data["direction"].(string)
		return "Decision published for " + symbol + ": " + direction
	case events.EventBarsIngested:
		return "Bars ingested for " + symbol
	case events.EventRunStarted:
		return "Decision run started"
	case events.EventRunFailed:
		return "Decision run failed for " + symbol
	case events.EventError:
		if msg, ok := event.Data["message"].(string); ok {
			return msg
		}
		return "Internal error"
	default:
		return string(event.Type)
	}
}

// splitOrigins turns the comma-separated origins setting into a list.
func splitOrigins(origins string) []string {
	if origins == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
