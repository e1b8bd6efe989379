package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/events"
	"trading-decision-engine/internal/metrics"
	"trading-decision-engine/internal/strategy"
	"trading-decision-engine/internal/telemetry"
)

// DataSource is what one decision cycle reads and writes. Implemented by
// marketdata.Provider.
type DataSource interface {
	BarsWindow(ctx context.Context, symbol string, asOf time.Time, limit int) ([]domain.Bar, error)
	MetricsAsOf(ctx context.Context, asOf time.Time) (map[string]domain.StrategyMetrics, error)
	UpsertMetrics(ctx context.Context, m domain.StrategyMetrics) error
	SaveDecision(ctx context.Context, dec domain.DailyDecision) error
}

// ServiceConfig bounds the data a cycle works with.
type ServiceConfig struct {
	// LookbackDays is the bar window loaded per cycle.
	LookbackDays int
	// MetricsWindowDays bounds the rolling window used to grade strategies.
	MetricsWindowDays int
}

// Service runs complete decision cycles: load bars, produce signals,
// refresh rolling metrics, run the orchestrator, persist and announce the
// decision. The scheduler, the API, and the CLI all drive cycles through
// this type.
type Service struct {
	orch       *Orchestrator
	strategies []strategy.Strategy
	metrics    *metrics.Engine
	data       DataSource
	bus        *events.EventBus
	recorder   *telemetry.Recorder
	log        zerolog.Logger

	lookbackDays int
}

// NewService wires a cycle service. bus and recorder may be nil.
func NewService(orch *Orchestrator, strategies []strategy.Strategy, data DataSource, bus *events.EventBus, recorder *telemetry.Recorder, cfg ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if data == nil {
		return nil, fmt.Errorf("data source is required")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 365
	}
	if cfg.MetricsWindowDays <= 0 {
		cfg.MetricsWindowDays = 365
	}

	orch.SetRecorder(recorder)

	return &Service{
		orch:         orch,
		strategies:   strategies,
		metrics:      metrics.NewEngine(cfg.MetricsWindowDays),
		data:         data,
		bus:          bus,
		recorder:     recorder,
		log:          logger.With().Str("component", "cycle").Logger(),
		lookbackDays: cfg.LookbackDays,
	}, nil
}

// StrategyNames returns the identifiers of the configured strategies,
// in evaluation order.
func (s *Service) StrategyNames() []string {
	names := make([]string, len(s.strategies))
	for i, strat := range s.strategies {
		names[i] = strat.Name()
	}
	return names
}

// RunCycle executes one full decision cycle for a symbol as of the given
// timestamp. The decision is persisted and published before it is
// returned; a persistence failure returns both the decision and the error.
func (s *Service) RunCycle(ctx context.Context, symbol string, asOf time.Time) (domain.DailyDecision, error) {
	start := time.Now()
	asOf = asOf.UTC()
	log := s.log.With().Str("symbol", symbol).Time("as_of", asOf).Logger()

	bars, err := s.data.BarsWindow(ctx, symbol, asOf, s.lookbackDays)
	if err != nil {
		s.recorder.RecordFailure("load_bars")
		s.publishRunFailed(symbol, err)
		return domain.DailyDecision{}, fmt.Errorf("loading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		err := fmt.Errorf("no bars stored for %s at or before %s", symbol, asOf.Format("2006-01-02"))
		s.recorder.RecordFailure("load_bars")
		s.publishRunFailed(symbol, err)
		return domain.DailyDecision{}, err
	}

	signals := s.produceSignals(log, symbol, bars)
	if len(signals) == 0 {
		s.recorder.RecordFailure("produce_signals")
		s.publishRunFailed(symbol, domain.ErrEmptySignalSet)
		return domain.DailyDecision{}, fmt.Errorf("%s: %w", symbol, domain.ErrEmptySignalSet)
	}

	returns := s.strategyReturns(bars)
	metricsMap := s.refreshMetrics(ctx, log, returns, asOf)

	dec, err := s.orch.Run(Request{
		Symbol:  symbol,
		AsOf:    asOf,
		Bars:    bars,
		Signals: signals,
		Metrics: metricsMap,
		Returns: returns,
	})
	if err != nil {
		s.publishRunFailed(symbol, err)
		return domain.DailyDecision{}, fmt.Errorf("decision cycle for %s: %w", symbol, err)
	}

	s.recorder.RecordCycleDuration(time.Since(start))
	s.recorder.RecordDecision(symbol, dec.Signal.Direction.String())
	if dec.Degraded {
		s.recorder.RecordDegraded()
	}

	if err := s.data.SaveDecision(ctx, dec); err != nil {
		s.recorder.RecordFailure("persist")
		s.publishRunFailed(symbol, err)
		return dec, fmt.Errorf("decision %s computed but not persisted: %w", dec.ID, err)
	}

	if s.bus != nil {
		s.bus.PublishDecision(dec.ID, symbol, dec.Signal.Direction.String(), dec.Signal.Strength, dec.Degraded)
		if len(dec.Weights) > 0 {
			s.bus.PublishWeights(symbol, dec.Weights)
		}
	}

	log.Info().
		Str("decision_id", dec.ID).
		Str("direction", dec.Signal.Direction.String()).
		Bool("degraded", dec.Degraded).
		Dur("took", time.Since(start)).
		Msg("Cycle finished")

	return dec, nil
}

// produceSignals evaluates every strategy over the full window. Strategies
// that cannot produce a signal are skipped, not fatal.
func (s *Service) produceSignals(log zerolog.Logger, symbol string, bars []domain.Bar) map[string]domain.Signal {
	signals := make(map[string]domain.Signal, len(s.strategies))
	for _, strat := range s.strategies {
		sig, err := strat.ProduceSignal(bars)
		if err != nil {
			log.Warn().Err(err).Str("strategy", strat.Name()).Msg("Strategy produced no signal")
			continue
		}
		signals[strat.Name()] = sig
		if s.bus != nil {
			s.bus.PublishSignal(strat.Name(), symbol, sig.Direction.String(), sig.Strength)
		}
	}
	return signals
}

// strategyReturns replays each strategy over expanding windows and
// records the daily return its stance would have realized: the next bar's
// close-to-close return, signed by the signal direction, zero when flat.
// Bars before the strategy's warmup contribute nothing.
func (s *Service) strategyReturns(bars []domain.Bar) map[string][]float64 {
	out := make(map[string][]float64, len(s.strategies))
	for _, strat := range s.strategies {
		var rets []float64
		for i := 1; i < len(bars); i++ {
			if bars[i-1].Close <= 0 {
				continue
			}
			sig, err := strat.ProduceSignal(bars[:i])
			if err != nil {
				continue
			}
			barReturn := bars[i].Close/bars[i-1].Close - 1
			switch sig.Direction {
			case domain.DirectionLong:
				rets = append(rets, barReturn)
			case domain.DirectionShort:
				rets = append(rets, -barReturn)
			default:
				rets = append(rets, 0)
			}
		}
		out[strat.Name()] = rets
	}
	return out
}

// refreshMetrics snapshots rolling metrics from the realized returns and
// persists them. When no strategy has enough history yet, the last stored
// snapshot serves as fallback so ranking still has something to work with.
func (s *Service) refreshMetrics(ctx context.Context, log zerolog.Logger, returns map[string][]float64, asOf time.Time) map[string]domain.StrategyMetrics {
	metricsMap := make(map[string]domain.StrategyMetrics)
	for id, rets := range returns {
		if len(rets) < 2 {
			continue
		}
		m := s.metrics.Snapshot(id, rets, asOf)
		metricsMap[id] = m

		if err := s.data.UpsertMetrics(ctx, m); err != nil {
			log.Warn().Err(err).Str("strategy", id).Msg("Metrics snapshot not persisted")
		}
		if s.bus != nil {
			s.bus.PublishMetricsUpdated(id, m.Sharpe, m.WinRate)
		}
	}

	if len(metricsMap) > 0 {
		return metricsMap
	}

	stored, err := s.data.MetricsAsOf(ctx, asOf)
	if err != nil {
		log.Warn().Err(err).Msg("No fresh metrics and stored metrics unavailable")
		return nil
	}
	if len(stored) > 0 {
		log.Info().Int("strategies", len(stored)).Msg("Using stored metrics snapshot")
	}
	return stored
}

func (s *Service) publishRunFailed(symbol string, err error) {
	if s.bus != nil {
		s.bus.PublishRunFailed(symbol, err)
	}
}
