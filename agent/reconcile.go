package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/state"
)

// FindPosition returns the first non-zero holding of c's symbol.
func FindPosition(positions []broker.Position, c broker.Contract) (broker.Position, bool) {
	for _, p := range positions {
		if p.Contract.Symbol == c.Symbol && p.Quantity != 0 {
			return p, true
		}
	}
	return broker.Position{}, false
}

// Reconcile makes st agree with the broker's holding of c. Adopting or
// resizing a holding rewrites position, size and entry price only. A holding
// that is gone clears the whole trade, parent order id included, so a late
// fill of the old parent cannot reopen it. The intent and the pause flag are
// always kept. It reports whether anything changed.
func Reconcile(st state.TradeState, positions []broker.Position, c broker.Contract) (state.TradeState, bool) {
	live, ok := FindPosition(positions, c)
	if ok {
		if st.IsLong() && st.Size == live.Quantity {
			return st, false
		}
		st.Position = state.PositionLong
		st.Size = live.Quantity
		st.EntryPrice = live.AvgCost
		return st, true
	}

	if !st.IsLong() {
		return st, false
	}
	st.ClearTrade()
	return st, true
}

// ReconcilePortfolio fetches the broker's positions and corrects the
// persisted trade state for c. A snapshot failure aborts the cycle.
func (a *Agent) ReconcilePortfolio(ctx context.Context, c broker.Contract) (state.TradeState, error) {
	positions, err := bounded(ctx, a.opts.PositionsTimeout, a.gw.Positions)
	if err != nil {
		return state.TradeState{}, fmt.Errorf("positions: %w", err)
	}

	log := a.log.With(zap.String("stage", "reconcile"), zap.String("symbol", c.Symbol))
	if live, ok := FindPosition(positions, c); ok {
		log.Info("broker reports position", zap.Float64("quantity", live.Quantity), zap.Float64("avg_cost", live.AvgCost))
	} else {
		log.Info("broker reports no position")
	}

	var corrected bool
	st, err := a.repo.Mutate(ctx, func(s *state.TradeState) error {
		var next state.TradeState
		next, corrected = Reconcile(*s, positions, c)
		*s = next
		return nil
	})
	if err != nil {
		return state.TradeState{}, fmt.Errorf("save reconciled state: %w", err)
	}
	if corrected {
		log.Warn("local state out of sync with broker, corrected", zap.Stringer("state", st))
		a.metrics.Correction()
		a.saved(st)
	}
	log.Info("reconciled", zap.Stringer("state", st))
	return st, nil
}
