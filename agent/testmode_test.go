package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/signal"
	"github.com/rustyeddy/tradeagent/state"
)

var (
	offHours   = time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC)
	marketOpen = time.Date(2024, 1, 4, 15, 30, 20, 0, time.UTC)
)

func testMode(o *Options) { o.Mode = ModeTest }

func TestMarketWindow(t *testing.T) {
	t.Parallel()

	w := DefaultWindow()
	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 1, 3, 15, 29, 59, 0, time.UTC), false},
		{time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC), true},
		{time.Date(2024, 1, 3, 15, 30, 59, 0, time.UTC), true},
		{time.Date(2024, 1, 3, 15, 31, 0, 0, time.UTC), false},
		{time.Date(2024, 1, 3, 10, 30, 30, 0, time.FixedZone("EST", -5*3600)), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Open(tt.at), tt.at.String())
	}

	wide := MarketWindow{Hour: 9, Minute: 30, Length: 6*time.Hour + 30*time.Minute, Location: time.FixedZone("ET", -5*3600)}
	assert.True(t, wide.Open(time.Date(2024, 1, 3, 20, 0, 0, 0, time.UTC)))
	assert.False(t, wide.Open(time.Date(2024, 1, 3, 21, 0, 0, 0, time.UTC)))
}

func TestTestModeSavesIntentOutsideWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMode)
	h.clock.Set(offHours)

	require.NoError(t, h.agent.RunCycle(context.Background()))
	st := h.state(t)
	assert.Equal(t, state.IntentBuy, st.Intent)
	assert.False(t, st.IsLong())
	assert.Empty(t, h.gw.Orders())
}

func TestTestModeExecutesIntentInWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMode)
	h.clock.Set(marketOpen)
	h.save(t, state.TradeState{Intent: state.IntentBuy})
	h.sig.resp.Prediction = signal.Hold

	require.NoError(t, h.agent.RunCycle(context.Background()))

	orders := h.gw.Orders()
	require.Len(t, orders, 1)
	o := orders[0].Order
	assert.Equal(t, broker.Buy, o.Action)
	assert.Equal(t, broker.Limit, o.Type)
	assert.Equal(t, 1.0, o.Quantity)
	assert.Equal(t, 47.5, o.LimitPrice)

	st := h.state(t)
	assert.Equal(t, state.TradeState{Position: state.PositionLong, Size: 1, EntryPrice: 50, ParentOrderID: orders[0].ID}, st)
	require.NoError(t, st.Validate())

	recs := h.journal.Orders()
	require.Len(t, recs, 1)
	assert.Equal(t, "test-entry", recs[0].Reason)
}

func TestTestModeNoOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		at   time.Time
		st   state.TradeState
		call signal.Call
	}{
		{"buy inside window without intent", marketOpen, state.TradeState{}, signal.Buy},
		{"hold outside window", offHours, state.TradeState{}, signal.Hold},
		{"intent waits for window", offHours, state.TradeState{Intent: state.IntentBuy}, signal.Buy},
		{"paused intent waits", marketOpen, state.TradeState{Intent: state.IntentBuy, PauseNewEntries: true}, signal.Buy},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, testMode)
			h.clock.Set(tt.at)
			h.save(t, tt.st)
			h.sig.resp.Prediction = tt.call

			require.NoError(t, h.agent.RunCycle(context.Background()))
			assert.Empty(t, h.gw.Orders())
			assert.Equal(t, tt.st, h.state(t))
		})
	}
}

func TestTestModeHeldPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMode)
	h.clock.Set(marketOpen)
	h.gw.SetPosition(spy, 1, 48)
	held := state.TradeState{Position: state.PositionLong, Size: 1, EntryPrice: 48, ParentOrderID: 4}
	h.save(t, held)

	require.NoError(t, h.agent.RunCycle(context.Background()))
	assert.Empty(t, h.gw.Orders())
	assert.Equal(t, held, h.state(t))
}
