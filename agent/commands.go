package agent

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/state"
)

// ProcessCommands handles the pending manual command, if any, and clears
// the inbox whatever the outcome. Handler failures are logged and
// reported, never propagated: the cycle goes on.
func (a *Agent) ProcessCommands(ctx context.Context, cycleID string) {
	log := a.log.With(zap.String("stage", "commands"), zap.String("cycle_id", cycleID))

	err := a.inbox.Consume(func(cmd command.Command, readErr error) {
		if readErr != nil {
			log.Error("unreadable manual command discarded", zap.Error(readErr))
			a.metrics.Command("malformed", "discarded")
			return
		}
		log.Info("manual command received", zap.Stringer("command", cmd))
		if err := a.Execute(ctx, cycleID, cmd); err != nil {
			log.Error("manual command failed", zap.String("command", string(cmd.Name)), zap.Error(err))
			a.metrics.Command(string(cmd.Name), "error")
			return
		}
		a.metrics.Command(string(cmd.Name), "ok")
	})
	if err != nil {
		log.Error("clearing command inbox failed", zap.Error(err))
	}
}

// Execute performs one manual command.
func (a *Agent) Execute(ctx context.Context, cycleID string, cmd command.Command) error {
	switch cmd.Name {
	case command.CloseAll:
		return a.closeAll(ctx, cycleID)
	case command.PauseNewEntries:
		st, err := a.repo.Mutate(ctx, func(s *state.TradeState) error {
			s.PauseNewEntries = cmd.Pause
			return nil
		})
		if err != nil {
			return fmt.Errorf("set pause_new_entries: %w", err)
		}
		a.log.Info("pause_new_entries set", zap.Bool("pause", st.PauseNewEntries))
		return nil
	case command.RestartLogic:
		if err := a.repo.Reset(ctx); err != nil {
			return fmt.Errorf("reset trade state: %w", err)
		}
		a.saved(state.Default())
		a.log.Info("trade state reset")
		return nil
	default:
		a.log.Warn("unknown manual command ignored", zap.String("command", string(cmd.Name)))
		return nil
	}
}

// closeAll market-sells every long holding. It does not wait for fills or
// touch the trade state; the classifier and the next reconciliation do.
func (a *Agent) closeAll(ctx context.Context, cycleID string) error {
	positions, err := bounded(ctx, a.opts.PositionsTimeout, a.gw.Positions)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var errs error
	for _, p := range positions {
		log := a.log.With(zap.String("symbol", p.Contract.Symbol), zap.Float64("quantity", p.Quantity))
		if p.Quantity <= 0 {
			if p.Quantity < 0 {
				log.Warn("short position left open by CLOSE_ALL")
			}
			continue
		}

		o := broker.MarketOrder(broker.Sell, p.Quantity)
		orderID, err := bounded(ctx, a.opts.OrderTimeout, func(ctx context.Context) (int64, error) {
			return a.gw.PlaceOrder(ctx, p.Contract, o)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", p.Contract.Symbol, err))
			continue
		}
		log.Info("close-all order sent", zap.Int64("order_id", orderID))
		a.recordOrder(ctx, cycleID, "close-all", orderID, p.Contract, o)
	}
	return errs
}
