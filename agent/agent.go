// Package agent runs the trade cycle: manual commands, prediction,
// reconciliation against the broker, and the test or production entry
// logic. It also classifies order fills as they stream in.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/command"
	"github.com/rustyeddy/tradeagent/journal"
	"github.com/rustyeddy/tradeagent/metrics"
	"github.com/rustyeddy/tradeagent/signal"
	"github.com/rustyeddy/tradeagent/state"
)

var (
	// ErrInsufficientData means the broker returned too few bars. The cycle
	// is skipped, not failed.
	ErrInsufficientData = errors.New("agent: insufficient historical data")

	// ErrCycleInFlight is returned when a cycle is triggered while another
	// is still running.
	ErrCycleInFlight = errors.New("agent: trade cycle already running")
)

type Mode string

const (
	ModeProduction Mode = "production"
	ModeTest       Mode = "test"
)

type Options struct {
	Mode Mode

	// Contract is requested for history and used when the signal service
	// does not name one.
	Contract      broker.Contract
	HistoryWindow string
	BarSize       string
	MinBars       int
	Currency      string

	PositionsTimeout time.Duration
	AccountTimeout   time.Duration
	HistoryTimeout   time.Duration
	OrderTimeout     time.Duration
	SignalTimeout    time.Duration

	SignalAttempts int
	SignalBackoff  time.Duration

	// PricePrecision is the decimal places order prices are rounded to.
	PricePrecision int32

	TestQuantity    float64
	TestPriceFactor float64
	Window          MarketWindow
}

func DefaultOptions() Options {
	return Options{
		Mode:             ModeProduction,
		HistoryWindow:    "90 D",
		BarSize:          "1 day",
		MinBars:          50,
		Currency:         "USD",
		PositionsTimeout: 5 * time.Second,
		AccountTimeout:   5 * time.Second,
		HistoryTimeout:   10 * time.Second,
		OrderTimeout:     5 * time.Second,
		SignalTimeout:    30 * time.Second,
		SignalAttempts:   3,
		SignalBackoff:    time.Second,
		PricePrecision:   2,
		TestQuantity:     1,
		TestPriceFactor:  0.95,
		Window:           DefaultWindow(),
	}
}

// Deps are the collaborators an Agent drives. Journal, Metrics, Log and
// Now are optional.
type Deps struct {
	Gateway broker.Gateway
	Signal  signal.Service
	State   *state.Repository
	Inbox   command.Inbox
	Journal journal.Journal
	Metrics *metrics.Metrics
	Log     *zap.Logger
	Now     func() time.Time
}

type Agent struct {
	opts    Options
	gw      broker.Gateway
	signal  signal.Service
	repo    *state.Repository
	inbox   command.Inbox
	journal journal.Journal
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	symbol string
}

func New(opts Options, d Deps) (*Agent, error) {
	if d.Gateway == nil {
		return nil, fmt.Errorf("agent: gateway is required")
	}
	if d.Signal == nil {
		return nil, fmt.Errorf("agent: signal service is required")
	}
	if d.State == nil {
		return nil, fmt.Errorf("agent: state repository is required")
	}
	if d.Inbox == nil {
		return nil, fmt.Errorf("agent: command inbox is required")
	}
	switch opts.Mode {
	case ModeProduction, ModeTest:
	case "":
		opts.Mode = ModeProduction
	default:
		return nil, fmt.Errorf("agent: unknown mode %q", opts.Mode)
	}
	if opts.Contract.IsZero() {
		return nil, fmt.Errorf("agent: default contract symbol is required")
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	return &Agent{
		opts:    opts,
		gw:      d.Gateway,
		signal:  d.Signal,
		repo:    d.State,
		inbox:   d.Inbox,
		journal: d.Journal,
		metrics: d.Metrics,
		log:     d.Log,
		now:     d.Now,
		symbol:  opts.Contract.Symbol,
	}, nil
}

func (a *Agent) Options() Options { return a.opts }

// State returns the persisted trade state.
func (a *Agent) State(ctx context.Context) (state.TradeState, error) {
	return a.repo.Load(ctx)
}

// Running reports whether a trade cycle is in progress.
func (a *Agent) Running() bool { return a.running.Load() }

func (a *Agent) setSymbol(s string) {
	a.mu.Lock()
	a.symbol = s
	a.mu.Unlock()
}

// trackedSymbol is the instrument of the most recent cycle.
func (a *Agent) trackedSymbol() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.symbol
}

// bounded runs fn under a timeout of d. A zero d leaves ctx alone.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, broker.ErrTimeout) {
		err = fmt.Errorf("%w: %v", broker.ErrTimeout, err)
	}
	return v, err
}

func (a *Agent) saved(st state.TradeState) {
	a.metrics.PositionSize(st.Size)
}
