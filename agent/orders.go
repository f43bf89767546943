package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/id"
	"github.com/rustyeddy/tradeagent/journal"
)

// recordOrder journals and counts one submitted order leg.
func (a *Agent) recordOrder(ctx context.Context, cycleID, reason string, orderID int64, c broker.Contract, o broker.Order) {
	a.metrics.Order(string(a.opts.Mode), string(o.Action), string(o.Type))
	rec := journal.OrderRecord{
		ID:         id.New(),
		CycleID:    cycleID,
		Time:       a.now(),
		OrderID:    orderID,
		ParentID:   o.ParentID,
		Symbol:     c.Symbol,
		Action:     string(o.Action),
		OrderType:  string(o.Type),
		Quantity:   o.Quantity,
		LimitPrice: o.LimitPrice,
		StopPrice:  o.StopPrice,
		Reason:     reason,
	}
	if err := a.journal.RecordOrder(ctx, rec); err != nil {
		a.log.Warn("journal order failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
