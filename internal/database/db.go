// Package database persists the decision engine's inputs and outputs in
// PostgreSQL: daily bars, rolling strategy metrics, finalized decisions
// and the system event log.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = cfg.MaxConns
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Info().Msg("Running database migrations")

	migrations := []string{
		// Daily OHLCV bars, one row per symbol, interval and bar time
		`CREATE TABLE IF NOT EXISTS daily_bars (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			interval VARCHAR(10) NOT NULL DEFAULT '1d',
			bar_time TIMESTAMP NOT NULL,
			open DECIMAL(20, 8) NOT NULL,
			high DECIMAL(20, 8) NOT NULL,
			low DECIMAL(20, 8) NOT NULL,
			close DECIMAL(20, 8) NOT NULL,
			volume DECIMAL(30, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (symbol, interval, bar_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_symbol_time ON daily_bars(symbol, bar_time)`,

		// Rolling strategy metrics snapshots
		`CREATE TABLE IF NOT EXISTS strategy_metrics (
			id SERIAL PRIMARY KEY,
			strategy_id VARCHAR(100) NOT NULL,
			as_of TIMESTAMP NOT NULL,
			sharpe DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			max_drawdown DOUBLE PRECISION NOT NULL,
			cagr DOUBLE PRECISION NOT NULL,
			window_days INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (strategy_id, as_of)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_metrics_strategy ON strategy_metrics(strategy_id, as_of)`,

		// Finalized decisions: full aggregate as JSONB plus indexed columns
		`CREATE TABLE IF NOT EXISTS decisions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			as_of TIMESTAMP NOT NULL,
			direction VARCHAR(5) NOT NULL,
			strength DOUBLE PRECISION NOT NULL,
			confidence VARCHAR(10) NOT NULL,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			decision JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (symbol, as_of)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_asof ON decisions(symbol, as_of)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_direction ON decisions(direction)`,

		// System events for audit logging
		`CREATE TABLE IF NOT EXISTS system_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			source VARCHAR(100),
			message TEXT,
			data JSONB,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_type ON system_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_timestamp ON system_events(timestamp)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("Database migrations completed")
	return nil
}
