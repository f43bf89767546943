package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/id"
	"github.com/rustyeddy/tradeagent/retry"
	"github.com/rustyeddy/tradeagent/risk"
	"github.com/rustyeddy/tradeagent/signal"
)

// Prediction is one cycle's view of the market.
type Prediction struct {
	Call     signal.Call
	Price    float64
	Params   risk.Params
	Contract broker.Contract
	Bars     int
}

// Predict fetches history for the configured contract and asks the signal
// service for a call. The service is retried; the broker is not.
func (a *Agent) Predict(ctx context.Context, cycleID string) (Prediction, error) {
	c := a.opts.Contract
	log := a.log.With(zap.String("stage", "predict"), zap.String("cycle_id", cycleID), zap.String("symbol", c.Symbol))

	bars, err := bounded(ctx, a.opts.HistoryTimeout, func(ctx context.Context) ([]broker.Bar, error) {
		return a.gw.HistoricalBars(ctx, c, a.opts.HistoryWindow, a.opts.BarSize)
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("historical data: %w", err)
	}
	if len(bars) < a.opts.MinBars || len(bars) == 0 {
		return Prediction{}, fmt.Errorf("%w: got %d bars, need %d", ErrInsufficientData, len(bars), a.opts.MinBars)
	}
	log.Info("historical data received", zap.Int("bars", len(bars)))

	policy := retry.Policy{
		Attempts:  a.opts.SignalAttempts,
		Delay:     a.opts.SignalBackoff,
		Retryable: signal.Retryable,
		OnRetry: func(attempt int, err error) {
			log.Warn("signal request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("attempts", a.opts.SignalAttempts),
				zap.Error(err))
		},
	}
	resp, err := retry.Value(ctx, policy, func(ctx context.Context) (signal.Response, error) {
		return bounded(ctx, a.opts.SignalTimeout, func(ctx context.Context) (signal.Response, error) {
			return a.signal.Predict(ctx, bars)
		})
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("signal: %w", err)
	}

	p := Prediction{
		Call:     resp.Prediction,
		Price:    bars[len(bars)-1].Close,
		Params:   resp.RiskParams,
		Contract: c,
		Bars:     len(bars),
	}
	if resp.Contract != nil && !resp.Contract.IsZero() {
		p.Contract = *resp.Contract
	}
	a.metrics.Signal(string(p.Call))
	log.Info("prediction",
		zap.String("prediction", string(p.Call)),
		zap.Float64("price", p.Price),
		zap.String("resolved_symbol", p.Contract.Symbol))
	return p, nil
}

// RunCycle runs one complete trade cycle. Only one cycle runs at a time; a
// concurrent call returns ErrCycleInFlight. Panics are recovered and
// returned as errors. A short bar history returns ErrInsufficientData.
func (a *Agent) RunCycle(ctx context.Context) (err error) {
	if !a.running.CompareAndSwap(false, true) {
		a.metrics.Cycle("busy", 0)
		return ErrCycleInFlight
	}
	defer a.running.Store(false)

	cycleID := id.New()
	log := a.log.With(zap.String("cycle_id", cycleID))
	start := a.now()
	log.Info("trade cycle started", zap.String("mode", string(a.opts.Mode)))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent: trade cycle panic: %v", r)
			log.Error("trade cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
		}

		outcome := "ok"
		switch {
		case errors.Is(err, ErrInsufficientData):
			outcome = "skipped"
		case err != nil:
			outcome = "failed"
		}
		elapsed := a.now().Sub(start)
		a.metrics.Cycle(outcome, elapsed.Seconds())
		log.Info("trade cycle ended", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
	}()

	return a.cycle(ctx, cycleID, log)
}

func (a *Agent) cycle(ctx context.Context, cycleID string, log *zap.Logger) error {
	a.ProcessCommands(ctx, cycleID)

	p, err := a.Predict(ctx, cycleID)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			log.Warn("not enough historical data, skipping cycle", zap.Error(err))
		} else {
			log.Error("prediction failed", zap.String("stage", "predict"), zap.Error(err))
		}
		return err
	}
	a.setSymbol(p.Contract.Symbol)

	st, err := a.ReconcilePortfolio(ctx, p.Contract)
	if err != nil {
		log.Error("reconciliation failed", zap.String("stage", "reconcile"), zap.Error(err))
		return err
	}

	if a.opts.Mode == ModeTest {
		err = a.runTest(ctx, cycleID, st, p)
	} else {
		err = a.runProduction(ctx, cycleID, st, p)
	}
	if err != nil {
		log.Error("trading logic failed", zap.String("stage", string(a.opts.Mode)), zap.Error(err))
		return err
	}
	return nil
}

// Trigger runs a cycle for a scheduler, logging rather than returning
// its error.
func (a *Agent) Trigger(ctx context.Context) {
	err := a.RunCycle(ctx)
	switch {
	case err == nil, errors.Is(err, ErrInsufficientData):
	case errors.Is(err, ErrCycleInFlight):
		a.log.Warn("trade cycle skipped, previous cycle still running")
	default:
		a.log.Error("trade cycle failed", zap.Error(err))
	}
}
