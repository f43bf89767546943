package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/id"
	"github.com/rustyeddy/tradeagent/journal"
	"github.com/rustyeddy/tradeagent/state"
)

type Fill string

const (
	FillIgnored Fill = "ignored"
	FillEntry   Fill = "entry"
	FillExit    Fill = "exit"
)

// Classify decides what a filled order means for st. Only a tracked order
// family counts: the parent's own fill opens the position, and a fill of
// any other order closes it. An order that reports a different parent
// belongs to another family and is ignored; a fill without a parent (a
// manual close, for one) is treated as an exit.
func Classify(st state.TradeState, s broker.OrderStatus) Fill {
	if !s.IsFilled() || !st.HasParent() {
		return FillIgnored
	}
	p := st.ParentOrderID
	switch {
	case s.OrderID == p && !st.IsLong():
		return FillEntry
	case s.OrderID != p && st.IsLong() && (s.ParentID == 0 || s.ParentID == p):
		return FillExit
	}
	return FillIgnored
}

// ApplyFill mutates st for a classified fill.
func ApplyFill(st *state.TradeState, f Fill, s broker.OrderStatus) {
	switch f {
	case FillEntry:
		st.Position = state.PositionLong
		st.EntryPrice = s.AvgFillPrice
		st.Size = s.Filled
	case FillExit:
		st.ClearTrade()
	}
}

// RunEvents consumes the gateway's event stream until ctx ends, keeping
// the trade state in step with fills.
func (a *Agent) RunEvents(ctx context.Context) error {
	events, cancel := a.gw.Subscribe(64)
	defer cancel()
	return a.RunEventsFrom(ctx, events)
}

// RunEventsFrom is RunEvents over a subscription the caller already holds.
// Subscribing before any cycle can place orders means no fill is missed.
func (a *Agent) RunEventsFrom(ctx context.Context, events <-chan broker.Event) error {
	a.log.Info("order event classifier started")
	for {
		select {
		case <-ctx.Done():
			a.log.Info("order event classifier stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes one broker event. It never panics out.
func (a *Agent) HandleEvent(ctx context.Context, ev broker.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("order event handler panicked", zap.Any("panic", r), zap.Stringer("event", ev))
		}
	}()

	switch ev.Kind {
	case broker.EventError:
		a.log.Error("broker error",
			zap.Int("code", ev.Code),
			zap.Int64("req_id", ev.ReqID),
			zap.String("message", ev.Message))
	case broker.EventOpenOrder:
		if ev.Open != nil {
			a.log.Info("open order",
				zap.Int64("order_id", ev.Open.OrderID),
				zap.String("symbol", ev.Open.Contract.Symbol),
				zap.String("action", string(ev.Open.Order.Action)),
				zap.String("type", string(ev.Open.Order.Type)),
				zap.Float64("quantity", ev.Open.Order.Quantity),
				zap.String("status", ev.Open.Status))
		}
	case broker.EventConnected, broker.EventDisconnected:
		a.log.Info("broker connectivity", zap.String("event", string(ev.Kind)))
	case broker.EventOrderStatus:
		if ev.Order == nil {
			return
		}
		if _, err := a.HandleOrderStatus(ctx, *ev.Order); err != nil {
			a.log.Error("order status handling failed", zap.Int64("order_id", ev.Order.OrderID), zap.Error(err))
		}
	}
}

// HandleOrderStatus classifies s against the stored state and applies it.
func (a *Agent) HandleOrderStatus(ctx context.Context, s broker.OrderStatus) (Fill, error) {
	log := a.log.With(zap.String("stage", "classify"), zap.Int64("order_id", s.OrderID))
	log.Info("order status",
		zap.String("status", s.Status),
		zap.Float64("filled", s.Filled),
		zap.Float64("remaining", s.Remaining),
		zap.Float64("avg_fill_price", s.AvgFillPrice),
		zap.Int64("parent_id", s.ParentID))

	if !s.IsFilled() {
		return FillIgnored, nil
	}

	fill := FillIgnored
	st, err := a.repo.Mutate(ctx, func(st *state.TradeState) error {
		fill = Classify(*st, s)
		ApplyFill(st, fill, s)
		return nil
	})
	if err != nil {
		return FillIgnored, fmt.Errorf("save classified fill: %w", err)
	}

	switch fill {
	case FillEntry:
		log.Info("entry fill", zap.Float64("size", st.Size), zap.Float64("entry_price", st.EntryPrice))
	case FillExit:
		log.Info("exit fill, trade closed", zap.Float64("price", s.AvgFillPrice))
	default:
		log.Debug("fill not part of the tracked order family", zap.Stringer("state", st))
		return fill, nil
	}

	a.metrics.Fill(string(fill))
	a.saved(st)
	rec := journal.FillRecord{
		ID:       id.New(),
		Time:     a.now(),
		OrderID:  s.OrderID,
		ParentID: s.ParentID,
		Symbol:   a.trackedSymbol(),
		Kind:     journal.FillKind(fill),
		Quantity: s.Filled,
		Price:    s.AvgFillPrice,
	}
	if err := a.journal.RecordFill(ctx, rec); err != nil {
		log.Warn("journal fill failed", zap.Error(err))
	}
	return fill, nil
}
