// Package marketdata fronts the database with the Redis cache: bar windows,
// metrics snapshots and latest decisions are read through the cache and fall
// back to Postgres when Redis is cold or unavailable.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/cache"
	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/telemetry"
)

// BarInterval is the only interval the daily engine works with.
const BarInterval = "1d"

// Store is the persistent side of the provider.
type Store interface {
	InsertBars(ctx context.Context, symbol, interval string, bars []domain.Bar) (int, error)
	BarsWindow(ctx context.Context, symbol string, asOf time.Time, limit int) ([]domain.Bar, error)
	UpsertStrategyMetrics(ctx context.Context, m domain.StrategyMetrics) error
	MetricsAsOf(ctx context.Context, asOf time.Time) (map[string]domain.StrategyMetrics, error)
	SaveDecision(ctx context.Context, dec domain.DailyDecision) error
	LatestDecision(ctx context.Context, symbol string) (domain.DailyDecision, error)
}

// Cache is the volatile side. A nil Cache disables caching entirely.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Provider is the data access layer the engine and API read from.
type Provider struct {
	store    Store
	cache    Cache
	recorder *telemetry.Recorder
	log      zerolog.Logger
}

// NewProvider creates a provider over the given store and cache.
// cache may be nil when Redis is disabled.
func NewProvider(store Store, c Cache, recorder *telemetry.Recorder, logger zerolog.Logger) *Provider {
	return &Provider{
		store:    store,
		cache:    c,
		recorder: recorder,
		log:      logger.With().Str("component", "marketdata").Logger(),
	}
}

// BarsWindow returns up to limit daily bars at or before asOf, oldest first.
func (p *Provider) BarsWindow(ctx context.Context, symbol string, asOf time.Time, limit int) ([]domain.Bar, error) {
	key := cache.BarsKey(symbol, BarInterval, asOf, limit)

	if p.cache != nil {
		var bars []domain.Bar
		err := p.cache.GetJSON(ctx, key, &bars)
		if err == nil {
			p.recorder.RecordCacheHit("bars")
			return bars, nil
		}
		p.recorder.RecordCacheMiss("bars")
		p.logCacheError("bars window", key, err)
	}

	bars, err := p.store.BarsWindow(ctx, symbol, asOf, limit)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && len(bars) > 0 {
		if err := p.cache.SetJSON(ctx, key, bars, cache.DefaultBarsTTL); err != nil {
			p.logCacheError("bars window store", key, err)
		}
	}
	return bars, nil
}

// IngestBars upserts bars into the store and invalidates cached windows
// for the symbol. Returns the number of bars written.
func (p *Provider) IngestBars(ctx context.Context, symbol, interval string, bars []domain.Bar) (int, error) {
	count, err := p.store.InsertBars(ctx, symbol, interval, bars)
	if err != nil {
		return 0, err
	}

	if p.cache != nil {
		pattern := "bars:" + symbol + ":" + interval + ":*"
		if err := p.cache.DeletePattern(ctx, pattern); err != nil {
			p.logCacheError("bars invalidate", pattern, err)
		}
	}

	p.log.Info().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("count", count).
		Msg("Bars ingested")
	return count, nil
}

// MetricsAsOf returns the latest metrics snapshot per strategy at or
// before asOf.
func (p *Provider) MetricsAsOf(ctx context.Context, asOf time.Time) (map[string]domain.StrategyMetrics, error) {
	key := cache.MetricsKey("all", asOf)

	if p.cache != nil {
		var metrics map[string]domain.StrategyMetrics
		err := p.cache.GetJSON(ctx, key, &metrics)
		if err == nil {
			p.recorder.RecordCacheHit("metrics")
			return metrics, nil
		}
		p.recorder.RecordCacheMiss("metrics")
		p.logCacheError("metrics snapshot", key, err)
	}

	metrics, err := p.store.MetricsAsOf(ctx, asOf)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && len(metrics) > 0 {
		if err := p.cache.SetJSON(ctx, key, metrics, cache.DefaultMetricsTTL); err != nil {
			p.logCacheError("metrics snapshot store", key, err)
		}
	}
	return metrics, nil
}

// UpsertMetrics stores a metrics snapshot and drops the cached map for
// its as-of date so the next read sees it.
func (p *Provider) UpsertMetrics(ctx context.Context, m domain.StrategyMetrics) error {
	if err := p.store.UpsertStrategyMetrics(ctx, m); err != nil {
		return err
	}

	if p.cache != nil {
		key := cache.MetricsKey("all", m.AsOf)
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logCacheError("metrics invalidate", key, err)
		}
	}
	return nil
}

// SaveDecision persists a decision and writes it through to the latest
// decision cache for its symbol.
func (p *Provider) SaveDecision(ctx context.Context, dec domain.DailyDecision) error {
	if err := p.store.SaveDecision(ctx, dec); err != nil {
		return err
	}

	if p.cache != nil {
		key := cache.LatestDecisionKey(dec.Symbol)
		if err := p.cache.SetJSON(ctx, key, dec, cache.DefaultDecisionTTL); err != nil {
			p.logCacheError("latest decision store", key, err)
		}
	}
	return nil
}

// LatestDecision returns the most recent decision for a symbol.
func (p *Provider) LatestDecision(ctx context.Context, symbol string) (domain.DailyDecision, error) {
	key := cache.LatestDecisionKey(symbol)

	if p.cache != nil {
		var dec domain.DailyDecision
		err := p.cache.GetJSON(ctx, key, &dec)
		if err == nil {
			p.recorder.RecordCacheHit("decision")
			return dec, nil
		}
		p.recorder.RecordCacheMiss("decision")
		p.logCacheError("latest decision", key, err)
	}

	dec, err := p.store.LatestDecision(ctx, symbol)
	if err != nil {
		return domain.DailyDecision{}, err
	}

	if p.cache != nil {
		if err := p.cache.SetJSON(ctx, key, dec, cache.DefaultDecisionTTL); err != nil {
			p.logCacheError("latest decision store", key, err)
		}
	}
	return dec, nil
}

// logCacheError logs cache failures at debug level. Misses are expected
// and not logged at all.
func (p *Provider) logCacheError(op, key string, err error) {
	if err == nil || errors.Is(err, cache.ErrCacheMiss) {
		return
	}
	p.log.Debug().Err(err).Str("key", key).Msgf("Cache %s failed", op)
}
