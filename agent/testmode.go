package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/risk"
	"github.com/rustyeddy/tradeagent/state"
)

// runTest is the paper-trading path. A Buy outside the market window is
// remembered as an intent; a remembered intent inside the window becomes
// one discounted limit buy of the configured test quantity.
func (a *Agent) runTest(ctx context.Context, cycleID string, st state.TradeState, p Prediction) error {
	log := a.log.With(zap.String("stage", "test"), zap.String("cycle_id", cycleID), zap.String("symbol", p.Contract.Symbol))
	log.Warn("test mode is active")

	now := a.now()
	open := a.opts.Window.Open(now)

	switch {
	case st.IsLong():
		log.Info("no action, already positioned", zap.Stringer("state", st))
		return nil

	case st.Intent == state.IntentBuy && open:
		if st.PauseNewEntries {
			log.Info("pending buy intent held, new entries are paused")
			return nil
		}
		return a.executeIntent(ctx, cycleID, log, p)

	case st.Intent == state.IntentNone && p.Call.IsBuy() && !open:
		saved, err := a.repo.Mutate(ctx, func(s *state.TradeState) error {
			if s.IsLong() {
				return nil
			}
			s.Intent = state.IntentBuy
			return nil
		})
		if err != nil {
			return fmt.Errorf("save intent: %w", err)
		}
		log.Info("buy signal outside market window, intent saved", zap.Stringer("window", a.opts.Window), zap.Stringer("state", saved))
		return nil
	}

	log.Info("no action",
		zap.String("prediction", string(p.Call)),
		zap.String("intent", string(st.Intent)),
		zap.Bool("window_open", open))
	return nil
}

func (a *Agent) executeIntent(ctx context.Context, cycleID string, log *zap.Logger, p Prediction) error {
	qty := a.opts.TestQuantity
	price := risk.RoundPrice(p.Price*a.opts.TestPriceFactor, a.opts.PricePrecision)
	o := broker.LimitOrder(broker.Buy, qty, price)

	log.Info("executing pending buy intent", zap.Float64("quantity", qty), zap.Float64("limit_price", price))
	orderID, err := bounded(ctx, a.opts.OrderTimeout, func(ctx context.Context) (int64, error) {
		return a.gw.PlaceOrder(ctx, p.Contract, o)
	})
	if err != nil {
		return fmt.Errorf("place test order: %w", err)
	}
	log.Info("test order sent", zap.Int64("order_id", orderID))
	a.recordOrder(ctx, cycleID, "test-entry", orderID, p.Contract, o)

	st, err := a.repo.Mutate(ctx, func(s *state.TradeState) error {
		s.Open(qty, p.Price, orderID)
		s.Intent = state.IntentNone
		return nil
	})
	if err != nil {
		return fmt.Errorf("save test position: %w", err)
	}
	a.saved(st)
	return nil
}
