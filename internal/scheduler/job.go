package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-decision-engine/internal/domain"
	"trading-decision-engine/internal/events"
)

// DefaultSymbolTimeout bounds one symbol's cycle inside the daily job.
const DefaultSymbolTimeout = 2 * time.Minute

// CycleRunner runs one decision cycle for a symbol. Implemented by
// engine.Service.
type CycleRunner interface {
	RunCycle(ctx context.Context, symbol string, asOf time.Time) (domain.DailyDecision, error)
}

// DecisionJob runs the decision cycle for every configured symbol. One
// symbol failing does not stop the others; the job reports the failures
// after the sweep.
type DecisionJob struct {
	runner  CycleRunner
	bus     *events.EventBus
	symbols []string
	timeout time.Duration
	log     zerolog.Logger
}

// NewDecisionJob creates the daily decision job. bus may be nil.
func NewDecisionJob(runner CycleRunner, bus *events.EventBus, symbols []string, logger zerolog.Logger) *DecisionJob {
	return &DecisionJob{
		runner:  runner,
		bus:     bus,
		symbols: symbols,
		timeout: DefaultSymbolTimeout,
		log:     logger.With().Str("job", "daily-decision-run").Logger(),
	}
}

// Name implements Job.
func (j *DecisionJob) Name() string {
	return "daily-decision-run"
}

// Run sweeps all symbols once, as of now.
func (j *DecisionJob) Run() error {
	asOf := time.Now().UTC()

	if j.bus != nil {
		j.bus.PublishRunStarted(j.symbols)
	}

	var failed int
	var firstErr error
	for _, symbol := range j.symbols {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		dec, err := j.runner.RunCycle(ctx, symbol, asOf)
		cancel()

		if err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Symbol cycle failed")
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		j.log.Info().
			Str("symbol", symbol).
			Str("decision_id", dec.ID).
			Str("direction", dec.Signal.Direction.String()).
			Msg("Symbol cycle finished")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed, first error: %w", failed, len(j.symbols), firstErr)
	}
	return nil
}
