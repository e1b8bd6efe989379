package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trading-decision-engine/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BARS
// ============================================================================

// InsertBars upserts a batch of OHLCV bars for a symbol. Re-ingesting the
// same bar time replaces the row, so corrected history wins.
func (r *Repository) InsertBars(ctx context.Context, symbol, interval string, bars []domain.Bar) (int, error) {
	if interval == "" {
		interval = "1d"
	}
	query := `
		INSERT INTO daily_bars (symbol, interval, bar_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, bar_time)
		DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		              close = EXCLUDED.close, volume = EXCLUDED.volume
	`
	count := 0
	for _, bar := range bars {
		_, err := r.db.Pool.Exec(
			ctx, query,
			symbol, interval, bar.Timestamp.UTC(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		)
		if err != nil {
			return count, fmt.Errorf("inserting bar at %s: %w", bar.Timestamp.Format(time.RFC3339), err)
		}
		count++
	}
	return count, nil
}

// BarsWindow returns up to limit bars at or before asOf, oldest first.
func (r *Repository) BarsWindow(ctx context.Context, symbol string, asOf time.Time, limit int) ([]domain.Bar, error) {
	query := `
		SELECT bar_time, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = $1 AND interval = '1d' AND bar_time <= $2
		ORDER BY bar_time DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var bar domain.Bar
		if err := rows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows come back newest first; callers expect oldest first.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// ============================================================================
// STRATEGY METRICS
// ============================================================================

// UpsertStrategyMetrics stores a rolling-metrics snapshot, replacing any
// previous snapshot for the same strategy and as-of time.
func (r *Repository) UpsertStrategyMetrics(ctx context.Context, m domain.StrategyMetrics) error {
	query := `
		INSERT INTO strategy_metrics (strategy_id, as_of, sharpe, win_rate, max_drawdown, cagr, window_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (strategy_id, as_of)
		DO UPDATE SET sharpe = EXCLUDED.sharpe, win_rate = EXCLUDED.win_rate,
		              max_drawdown = EXCLUDED.max_drawdown, cagr = EXCLUDED.cagr,
		              window_days = EXCLUDED.window_days
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		m.StrategyID, m.AsOf.UTC(), m.Sharpe, m.WinRate, m.MaxDrawdown, m.CAGR, m.WindowDays,
	)
	return err
}

// MetricsAsOf returns the most recent metrics snapshot per strategy at or
// before asOf, keyed by strategy ID.
func (r *Repository) MetricsAsOf(ctx context.Context, asOf time.Time) (map[string]domain.StrategyMetrics, error) {
	query := `
		SELECT DISTINCT ON (strategy_id)
		       strategy_id, as_of, sharpe, win_rate, max_drawdown, cagr, window_days
		FROM strategy_metrics
		WHERE as_of <= $1
		ORDER BY strategy_id, as_of DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.StrategyMetrics)
	for rows.Next() {
		var m domain.StrategyMetrics
		if err := rows.Scan(&m.StrategyID, &m.AsOf, &m.Sharpe, &m.WinRate, &m.MaxDrawdown, &m.CAGR, &m.WindowDays); err != nil {
			return nil, fmt.Errorf("scanning metrics: %w", err)
		}
		out[m.StrategyID] = m
	}
	return out, rows.Err()
}

// MetricsHistory returns recent metrics snapshots for one strategy, newest
// first.
func (r *Repository) MetricsHistory(ctx context.Context, strategyID string, limit int) ([]domain.StrategyMetrics, error) {
	query := `
		SELECT strategy_id, as_of, sharpe, win_rate, max_drawdown, cagr, window_days
		FROM strategy_metrics
		WHERE strategy_id = $1
		ORDER BY as_of DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying metrics history: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyMetrics
	for rows.Next() {
		var m domain.StrategyMetrics
		if err := rows.Scan(&m.StrategyID, &m.AsOf, &m.Sharpe, &m.WinRate, &m.MaxDrawdown, &m.CAGR, &m.WindowDays); err != nil {
			return nil, fmt.Errorf("scanning metrics history: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ============================================================================
// DECISIONS
// ============================================================================

// SaveDecision upserts a finalized decision. The decision ID is derived
// from symbol and as-of, so re-running a cycle replaces the earlier row.
func (r *Repository) SaveDecision(ctx context.Context, dec domain.DailyDecision) error {
	payload, err := json.Marshal(dec)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}

	query := `
		INSERT INTO decisions (id, symbol, as_of, direction, strength, confidence, degraded, decision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET direction = EXCLUDED.direction, strength = EXCLUDED.strength,
		              confidence = EXCLUDED.confidence, degraded = EXCLUDED.degraded,
		              decision = EXCLUDED.decision
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		dec.ID, dec.Symbol, dec.AsOf.UTC(), dec.Signal.Direction.String(), dec.Signal.Strength,
		string(dec.Confidence.Tier), dec.Degraded, payload,
	)
	return err
}

// GetDecision returns the full decision aggregate by ID.
func (r *Repository) GetDecision(ctx context.Context, id string) (domain.DailyDecision, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT decision FROM decisions WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyDecision{}, ErrNotFound
		}
		return domain.DailyDecision{}, fmt.Errorf("querying decision: %w", err)
	}

	var dec domain.DailyDecision
	if err := json.Unmarshal(raw, &dec); err != nil {
		return domain.DailyDecision{}, fmt.Errorf("unmarshaling decision: %w", err)
	}
	return dec, nil
}

// LatestDecision returns the most recent decision for a symbol.
func (r *Repository) LatestDecision(ctx context.Context, symbol string) (domain.DailyDecision, error) {
	var raw []byte
	query := `SELECT decision FROM decisions WHERE symbol = $1 ORDER BY as_of DESC LIMIT 1`
	err := r.db.Pool.QueryRow(ctx, query, symbol).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyDecision{}, ErrNotFound
		}
		return domain.DailyDecision{}, fmt.Errorf("querying latest decision: %w", err)
	}

	var dec domain.DailyDecision
	if err := json.Unmarshal(raw, &dec); err != nil {
		return domain.DailyDecision{}, fmt.Errorf("unmarshaling decision: %w", err)
	}
	return dec, nil
}

// ListDecisions returns decision summaries, newest first. An empty symbol
// lists across all symbols.
func (r *Repository) ListDecisions(ctx context.Context, symbol string, limit, offset int) ([]DecisionRecord, error) {
	query := `
		SELECT id, symbol, as_of, direction, strength, confidence, degraded, created_at
		FROM decisions
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY as_of DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.AsOf, &rec.Direction, &rec.Strength,
			&rec.Confidence, &rec.Degraded, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ============================================================================
// SYSTEM EVENTS
// ============================================================================

// CreateSystemEvent inserts a system event
func (r *Repository) CreateSystemEvent(ctx context.Context, event *SystemEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}

	query := `
		INSERT INTO system_events (event_type, source, message, data, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		event.EventType, event.Source, event.Message, dataJSON, event.Timestamp.UTC(),
	).Scan(&event.ID, &event.CreatedAt)
}

// GetRecentSystemEvents retrieves recent system events, newest first
func (r *Repository) GetRecentSystemEvents(ctx context.Context, limit int) ([]*SystemEvent, error) {
	query := `
		SELECT id, event_type, COALESCE(source, ''), COALESCE(message, ''), data, timestamp, created_at
		FROM system_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying system events: %w", err)
	}
	defer rows.Close()

	var out []*SystemEvent
	for rows.Next() {
		event := &SystemEvent{}
		var dataJSON []byte
		if err := rows.Scan(&event.ID, &event.EventType, &event.Source, &event.Message,
			&dataJSON, &event.Timestamp, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning system event: %w", err)
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &event.Data); err != nil {
				event.Data = nil
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
