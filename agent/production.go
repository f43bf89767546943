package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/risk"
	"github.com/rustyeddy/tradeagent/state"
)

// runProduction opens a risk-sized bracket on a Buy when flat and not
// paused. Exits are left to the bracket legs.
func (a *Agent) runProduction(ctx context.Context, cycleID string, st state.TradeState, p Prediction) error {
	log := a.log.With(zap.String("stage", "production"), zap.String("cycle_id", cycleID), zap.String("symbol", p.Contract.Symbol))

	switch {
	case st.IsLong():
		log.Info("no action, position held until a bracket leg fills", zap.String("prediction", string(p.Call)))
		return nil
	case !p.Call.IsBuy():
		log.Info("no action", zap.String("prediction", string(p.Call)))
		return nil
	case st.PauseNewEntries:
		log.Info("skipping new entry, pause_new_entries is set")
		return nil
	}

	balance, err := bounded(ctx, a.opts.AccountTimeout, func(ctx context.Context) (float64, error) {
		return a.gw.AccountValue(ctx, a.opts.Currency)
	})
	if err != nil {
		return fmt.Errorf("account balance: %w", err)
	}
	log.Info("account balance", zap.Float64("balance", balance), zap.String("currency", a.opts.Currency))

	plan, err := risk.Calculate(risk.Inputs{
		Balance:   balance,
		Price:     p.Price,
		Params:    p.Params,
		Precision: a.opts.PricePrecision,
	})
	if err != nil {
		if errors.Is(err, risk.ErrInvalidStopLoss) {
			log.Error("invalid risk parameters, no order placed", zap.Error(err))
		}
		return fmt.Errorf("plan: %w", err)
	}

	entry := broker.MarketOrder(broker.Buy, plan.Size)
	tp := broker.LimitOrder(broker.Sell, plan.Size, plan.TakeProfitPrice)
	sl := broker.StopOrder(broker.Sell, plan.Size, plan.StopPrice)

	log.Info("placing bracket order",
		zap.Float64("size", plan.Size),
		zap.Float64("take_profit", plan.TakeProfitPrice),
		zap.Float64("stop_loss", plan.StopPrice),
		zap.Float64("planned_risk", plan.PlannedRisk),
		zap.Float64("risk_pct", plan.RiskPct),
		zap.Float64("reward_risk", plan.RewardRisk))

	ids, err := bounded(ctx, a.opts.OrderTimeout, func(ctx context.Context) (broker.BracketIDs, error) {
		return a.gw.PlaceBracketOrder(ctx, p.Contract, entry, tp, sl)
	})
	if err != nil {
		return fmt.Errorf("place bracket: %w", err)
	}
	log.Info("bracket order sent",
		zap.Int64("order_id", ids.Entry),
		zap.Int64("take_profit_id", ids.TakeProfit),
		zap.Int64("stop_loss_id", ids.StopLoss))

	tp.ParentID, sl.ParentID = ids.Entry, ids.Entry
	a.recordOrder(ctx, cycleID, "entry", ids.Entry, p.Contract, entry)
	a.recordOrder(ctx, cycleID, "take-profit", ids.TakeProfit, p.Contract, tp)
	a.recordOrder(ctx, cycleID, "stop-loss", ids.StopLoss, p.Contract, sl)

	saved, err := a.repo.Mutate(ctx, func(s *state.TradeState) error {
		s.Open(plan.Size, p.Price, ids.Entry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	a.saved(saved)
	return nil
}
