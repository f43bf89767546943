package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeagent/broker"
)

var spy = broker.Contract{Symbol: "SPY", SecType: "STK", Exchange: "SMART", Currency: "USD"}

func connected(t *testing.T) *Gateway {
	t.Helper()
	g := New(100_000, "USD")
	require.NoError(t, g.Connect(context.Background()))
	return g
}

func drain(ch <-chan broker.Event) []broker.Event {
	var out []broker.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func statuses(evs []broker.Event) []string {
	var out []string
	for _, ev := range evs {
		if ev.Kind == broker.EventOrderStatus {
			out = append(out, ev.Order.Status)
		}
	}
	return out
}

func TestRequiresConnection(t *testing.T) {
	t.Parallel()

	g := New(1000, "USD")
	_, err := g.Positions(context.Background())
	assert.ErrorIs(t, err, broker.ErrNotConnected)
}

func TestMarketOrderFillsAndMovesPosition(t *testing.T) {
	t.Parallel()

	g := connected(t)
	g.SetPrice("SPY", 50)
	ch, cancel := g.Subscribe(16)
	defer cancel()

	id, err := g.PlaceOrder(context.Background(), spy, broker.MarketOrder(broker.Buy, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, []string{broker.StatusSubmitted, broker.StatusFilled}, statuses(drain(ch)))

	pos, err := g.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, 10.0, pos[0].Quantity)
	assert.Equal(t, 50.0, pos[0].AvgCost)
	assert.InDelta(t, 99_500, g.Balance(), 1e-9)

	_, err = g.PlaceOrder(context.Background(), spy, broker.MarketOrder(broker.Sell, 10))
	require.NoError(t, err)
	pos, err = g.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestMarketOrderWithoutPrice(t *testing.T) {
	t.Parallel()

	g := connected(t)
	_, err := g.PlaceOrder(context.Background(), spy, broker.MarketOrder(broker.Buy, 1))
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestBracketTakeProfitCancelsStop(t *testing.T) {
	t.Parallel()

	g := connected(t)
	g.SetPrice("SPY", 50)
	ch, cancel := g.Subscribe(64)
	defer cancel()

	ids, err := g.PlaceBracketOrder(context.Background(), spy,
		broker.MarketOrder(broker.Buy, 100),
		broker.LimitOrder(broker.Sell, 100, 52),
		broker.StopOrder(broker.Sell, 100, 49),
	)
	require.NoError(t, err)
	assert.Equal(t, broker.BracketIDs{Entry: 1, TakeProfit: 2, StopLoss: 3}, ids)
	drain(ch)

	g.SetPrice("SPY", 51)
	assert.Empty(t, statuses(drain(ch)))

	g.SetPrice("SPY", 52.5)
	evs := drain(ch)
	require.Len(t, evs, 2)
	assert.Equal(t, ids.TakeProfit, evs[0].Order.OrderID)
	assert.Equal(t, broker.StatusFilled, evs[0].Order.Status)
	assert.Equal(t, ids.Entry, evs[0].Order.ParentID)
	assert.Equal(t, 52.0, evs[0].Order.AvgFillPrice)
	assert.Equal(t, ids.StopLoss, evs[1].Order.OrderID)
	assert.Equal(t, broker.StatusCancelled, evs[1].Order.Status)

	pos, err := g.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestBracketStopLoss(t *testing.T) {
	t.Parallel()

	g := connected(t)
	g.SetPrice("SPY", 50)
	ids, err := g.PlaceBracketOrder(context.Background(), spy,
		broker.MarketOrder(broker.Buy, 10),
		broker.LimitOrder(broker.Sell, 10, 52),
		broker.StopOrder(broker.Sell, 10, 49),
	)
	require.NoError(t, err)

	ch, cancel := g.Subscribe(16)
	defer cancel()
	g.SetPrice("SPY", 48.5)
	evs := drain(ch)
	require.NotEmpty(t, evs)
	assert.Equal(t, ids.StopLoss, evs[0].Order.OrderID)
	assert.Equal(t, broker.StatusFilled, evs[0].Order.Status)
}

func TestBracketLegThroughTriggerFillsOnActivation(t *testing.T) {
	t.Parallel()

	g := connected(t)
	g.SetPrice("SPY", 50)
	ch, cancel := g.Subscribe(64)
	defer cancel()

	// the stop sits above the market, so it is through its trigger the
	// moment the entry fills
	ids, err := g.PlaceBracketOrder(context.Background(), spy,
		broker.MarketOrder(broker.Buy, 10),
		broker.LimitOrder(broker.Sell, 10, 53),
		broker.StopOrder(broker.Sell, 10, 51),
	)
	require.NoError(t, err)

	final := map[int64]broker.OrderStatus{}
	for _, ev := range drain(ch) {
		if ev.Kind == broker.EventOrderStatus {
			final[ev.Order.OrderID] = *ev.Order
		}
	}
	assert.Equal(t, broker.StatusFilled, final[ids.Entry].Status)
	assert.Equal(t, broker.StatusFilled, final[ids.StopLoss].Status)
	assert.Equal(t, ids.Entry, final[ids.StopLoss].ParentID)
	assert.Equal(t, 50.0, final[ids.StopLoss].AvgFillPrice)
	assert.Equal(t, broker.StatusCancelled, final[ids.TakeProfit].Status)

	pos, err := g.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pos)

	// nothing left working for a later price to trigger
	g.SetPrice("SPY", 60)
	assert.Empty(t, statuses(drain(ch)))
}

func TestLimitOrderRestsUntilCrossed(t *testing.T) {
	t.Parallel()

	g := connected(t)
	g.SetPrice("SPY", 100)
	id, err := g.PlaceOrder(context.Background(), spy, broker.LimitOrder(broker.Buy, 1, 95))
	require.NoError(t, err)

	pos, _ := g.Positions(context.Background())
	assert.Empty(t, pos)

	ch, cancel := g.Subscribe(4)
	defer cancel()
	g.SetPrice("SPY", 94)
	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, id, evs[0].Order.OrderID)
	assert.Equal(t, 95.0, evs[0].Order.AvgFillPrice)
}

func TestFaultsAndDelays(t *testing.T) {
	t.Parallel()

	g := connected(t)
	boom := errors.New("boom")
	g.SetFault(OpAccount, boom)
	_, err := g.AccountValue(context.Background(), "USD")
	assert.ErrorIs(t, err, boom)
	g.SetFault(OpAccount, nil)
	bal, err := g.AccountValue(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, bal)

	g.SetDelay(OpPositions, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Positions(ctx)
	assert.ErrorIs(t, err, broker.ErrTimeout)
}
