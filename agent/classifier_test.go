package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/journal"
	"github.com/rustyeddy/tradeagent/state"
)

func filled(id, parent int64, qty, price float64) broker.OrderStatus {
	return broker.OrderStatus{OrderID: id, Status: broker.StatusFilled, Filled: qty, AvgFillPrice: price, ParentID: parent}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	pending := state.TradeState{ParentOrderID: 7}
	long := state.TradeState{Position: state.PositionLong, Size: 10, EntryPrice: 50, ParentOrderID: 7}

	tests := []struct {
		name string
		st   state.TradeState
		s    broker.OrderStatus
		want Fill
	}{
		{"entry fill", pending, filled(7, 0, 10, 50.5), FillEntry},
		{"entry fill while long is a repeat", long, filled(7, 0, 10, 50.5), FillIgnored},
		{"child leg exit", long, filled(42, 7, 10, 52), FillExit},
		{"exit without reported parent", long, filled(42, 0, 10, 52), FillExit},
		{"other family ignored", long, filled(42, 9, 10, 52), FillIgnored},
		{"child fill while flat", pending, filled(42, 7, 10, 52), FillIgnored},
		{"no tracked parent", state.TradeState{}, filled(7, 0, 10, 50), FillIgnored},
		{"not filled", pending, broker.OrderStatus{OrderID: 7, Status: broker.StatusSubmitted}, FillIgnored},
		{"cancelled leg", long, broker.OrderStatus{OrderID: 8, Status: broker.StatusCancelled, ParentID: 7}, FillIgnored},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.st, tt.s))
		})
	}
}

func TestApplyFill(t *testing.T) {
	t.Parallel()

	st := state.TradeState{ParentOrderID: 7, PauseNewEntries: true}
	ApplyFill(&st, FillEntry, filled(7, 0, 10, 50.5))
	assert.Equal(t, state.TradeState{Position: state.PositionLong, Size: 10, EntryPrice: 50.5, ParentOrderID: 7, PauseNewEntries: true}, st)

	ApplyFill(&st, FillExit, filled(9, 7, 10, 52))
	assert.Equal(t, state.TradeState{PauseNewEntries: true}, st)

	before := st
	ApplyFill(&st, FillIgnored, filled(1, 0, 1, 1))
	assert.Equal(t, before, st)
}

func TestHandleOrderStatusExitScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.save(t, state.TradeState{Position: state.PositionLong, Size: 10, EntryPrice: 50, ParentOrderID: 7, PauseNewEntries: true})

	fill, err := h.agent.HandleOrderStatus(context.Background(), filled(42, 7, 10, 52))
	require.NoError(t, err)
	assert.Equal(t, FillExit, fill)
	assert.Equal(t, state.TradeState{PauseNewEntries: true}, h.state(t))

	fills := h.journal.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, journal.FillExit, fills[0].Kind)
	assert.Equal(t, int64(42), fills[0].OrderID)
	assert.Equal(t, "SPY", fills[0].Symbol)
}

func TestHandleOrderStatusIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	before := state.TradeState{Position: state.PositionLong, Size: 10, EntryPrice: 50, ParentOrderID: 7}
	h.save(t, before)

	fill, err := h.agent.HandleOrderStatus(context.Background(), filled(99, 3, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, FillIgnored, fill)
	assert.Equal(t, before, h.state(t))
	assert.Empty(t, h.journal.Fills())
}

func TestRunEventsFollowsBracket(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.agent.RunEvents(ctx) }()
	require.Eventually(t, func() bool { return h.gw.Subscribers() == 1 }, time.Second, time.Millisecond)

	// track a resting limit entry the way test mode does
	id, err := h.gw.PlaceOrder(ctx, spy, broker.LimitOrder(broker.Buy, 3, 49))
	require.NoError(t, err)
	h.save(t, state.TradeState{ParentOrderID: id, PauseNewEntries: true})

	h.gw.SetPrice(spy.Symbol, 48.5)
	require.Eventually(t, func() bool { return h.state(t).IsLong() }, time.Second, 5*time.Millisecond)
	st := h.state(t)
	assert.Equal(t, 3.0, st.Size)
	assert.Equal(t, 49.0, st.EntryPrice)

	// a manual sell closes the trade
	_, err = h.gw.PlaceOrder(ctx, spy, broker.MarketOrder(broker.Sell, 3))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !h.state(t).IsLong() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, state.TradeState{PauseNewEntries: true}, h.state(t))

	// error events are logged, not fatal
	h.gw.Publish(broker.Event{Kind: broker.EventError, Code: 2104, Message: "market data farm ok"})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("classifier did not stop")
	}
	assert.Len(t, h.journal.Fills(), 2)
}

func TestRunEventsFromBufferedSubscription(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := h.gw.Subscribe(64)
	defer unsubscribe()

	// the entry fills before the loop is running
	id, err := h.gw.PlaceOrder(ctx, spy, broker.LimitOrder(broker.Buy, 3, 49))
	require.NoError(t, err)
	h.save(t, state.TradeState{ParentOrderID: id})
	h.gw.SetPrice(spy.Symbol, 48.5)
	assert.False(t, h.state(t).IsLong())

	done := make(chan error, 1)
	go func() { done <- h.agent.RunEventsFrom(ctx, events) }()

	require.Eventually(t, func() bool { return h.state(t).IsLong() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, state.TradeState{Position: state.PositionLong, Size: 3, EntryPrice: 49, ParentOrderID: id}, h.state(t))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("classifier did not stop")
	}
}

func TestHandleEventIgnoresMalformed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	assert.NotPanics(t, func() {
		h.agent.HandleEvent(context.Background(), broker.Event{Kind: broker.EventOrderStatus})
		h.agent.HandleEvent(context.Background(), broker.Event{Kind: broker.EventOpenOrder})
		h.agent.HandleEvent(context.Background(), broker.Event{Kind: broker.EventConnected})
	})
}
