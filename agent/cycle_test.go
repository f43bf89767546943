package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/broker/paper"
	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/signal"
	"github.com/rustyeddy/tradeagent/state"
)

type panicSignal struct{}

func (panicSignal) Predict(context.Context, []broker.Bar) (signal.Response, error) {
	panic("model exploded")
}

// gateSignal blocks every call until release is closed.
type gateSignal struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gateSignal) Predict(ctx context.Context, _ []broker.Bar) (signal.Response, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return signal.Response{Prediction: signal.Hold, RiskParams: defaultParams}, nil
	case <-ctx.Done():
		return signal.Response{}, ctx.Err()
	}
}

func TestPredict(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	p, err := h.agent.Predict(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, signal.Buy, p.Call)
	assert.Equal(t, 50.0, p.Price)
	assert.Equal(t, defaultParams, p.Params)
	assert.Equal(t, spy, p.Contract)
	assert.Equal(t, 60, p.Bars)
	assert.Equal(t, 60, h.sig.seen)
}

func TestPredictRetriesSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"first try", nil, 1, false},
		{"two failures then success", []error{errors.New("connection refused"), errors.New("EOF")}, 3, false},
		{"three failures", []error{errors.New("a"), errors.New("b"), errors.New("c")}, 3, true},
		{"client error is final", []error{&signal.StatusError{Code: 400, Message: "bad bars"}}, 1, true},
		{"rate limit retried", []error{&signal.StatusError{Code: 429}}, 2, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			h.sig.errs = tt.errs

			err := h.agent.RunCycle(context.Background())
			assert.Equal(t, tt.wantCalls, h.sig.Calls())
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, h.gw.Orders())
				assert.Equal(t, state.Default(), h.state(t))
				return
			}
			require.NoError(t, err)
			assert.Len(t, h.gw.Orders(), 3)
		})
	}
}

func TestCycleSkipsShortHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.gw.SetBars(spy.Symbol, makeBars(10, 50))

	err := h.agent.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Zero(t, h.sig.Calls())
	assert.Empty(t, h.gw.Orders())

	h.gw.SetBars(spy.Symbol, nil)
	assert.ErrorIs(t, h.agent.RunCycle(context.Background()), ErrInsufficientData)
}

func TestCycleBrokerFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("socket closed")
	tests := []struct {
		name    string
		op      paper.Op
		wantSig int
	}{
		{"history", paper.OpHistory, 0},
		{"positions", paper.OpPositions, 1},
		{"orders", paper.OpOrder, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			h.gw.SetFault(tt.op, boom)

			err := h.agent.RunCycle(context.Background())
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantSig, h.sig.Calls())
			assert.Empty(t, h.gw.Orders())
			assert.Equal(t, state.Default(), h.state(t))
		})
	}
}

func TestCycleUsesResolvedContract(t *testing.T) {
	t.Parallel()

	qqq := broker.Contract{Symbol: "QQQ", SecType: "STK", Exchange: "SMART", Currency: "USD"}
	h := newHarness(t, nil)
	h.gw.SetPrice(qqq.Symbol, 50)
	h.sig.resp.Contract = &qqq

	require.NoError(t, h.agent.RunCycle(context.Background()))
	orders := h.gw.Orders()
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, "QQQ", o.Contract.Symbol)
	}
	assert.Equal(t, "QQQ", h.agent.trackedSymbol())

	// an empty contract falls back to the configured one
	h2 := newHarness(t, nil)
	h2.sig.resp.Contract = &broker.Contract{}
	require.NoError(t, h2.agent.RunCycle(context.Background()))
	assert.Equal(t, "SPY", h2.gw.Orders()[0].Contract.Symbol)
}

func TestCycleAppliesCommandFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.inbox.Write(command.Command{Name: command.PauseNewEntries, Pause: true}))

	require.NoError(t, h.agent.RunCycle(context.Background()))
	assert.Empty(t, h.gw.Orders())
	assert.True(t, h.state(t).PauseNewEntries)

	cmd, err := h.inbox.Read()
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestCycleReconcilesBeforeEntry(t *testing.T) {
	t.Parallel()

	// a stale long with nothing at the broker is cleared and the Buy
	// proceeds in the same cycle
	h := newHarness(t, nil)
	h.save(t, state.TradeState{Position: state.PositionLong, Size: 5, EntryPrice: 40, ParentOrderID: 3})

	require.NoError(t, h.agent.RunCycle(context.Background()))
	st := h.state(t)
	assert.True(t, st.IsLong())
	assert.Equal(t, 1000.0, st.Size)
	assert.Len(t, h.gw.Orders(), 3)
}

func TestCycleInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	gate := &gateSignal{started: make(chan struct{}), release: make(chan struct{})}
	h.agent.signal = gate

	done := make(chan error, 1)
	go func() { done <- h.agent.RunCycle(context.Background()) }()
	<-gate.started

	assert.True(t, h.agent.Running())
	assert.ErrorIs(t, h.agent.RunCycle(context.Background()), ErrCycleInFlight)

	close(gate.release)
	require.NoError(t, <-done)
	assert.False(t, h.agent.Running())
}

func TestCycleRecoversPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.agent.signal = panicSignal{}

	err := h.agent.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
	assert.False(t, h.agent.Running())

	// the next cycle runs normally
	h.agent.signal = h.sig
	require.NoError(t, h.agent.RunCycle(context.Background()))
}

func TestCycleSignalTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(o *Options) {
		o.SignalTimeout = 10 * time.Millisecond
		o.SignalAttempts = 2
	})
	gate := &gateSignal{started: make(chan struct{}), release: make(chan struct{})}
	h.agent.signal = gate

	err := h.agent.RunCycle(context.Background())
	assert.ErrorIs(t, err, broker.ErrTimeout)
	assert.Empty(t, h.gw.Orders())
}

func TestTriggerSwallowsErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.gw.SetFault(paper.OpPositions, errors.New("down"))
	assert.NotPanics(t, func() { h.agent.Trigger(context.Background()) })
	assert.Empty(t, h.gw.Orders())

	h.gw.SetFault(paper.OpPositions, nil)
	h.agent.Trigger(context.Background())
	assert.Len(t, h.gw.Orders(), 3)
}
