package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/tradeagent/broker"
)

type Op string

const (
	OpConnect   Op = "connect"
	OpPositions Op = "positions"
	OpHistory   Op = "history"
	OpAccount   Op = "account"
	OpOrder     Op = "order"
)

var ErrNoPrice = errors.New("paper: no price for instrument")

// Gateway is an in-process broker. Market orders fill immediately at the
// last price; limit and stop orders rest until SetPrice crosses them.
// Bracket children activate once their parent fills and cancel each
// other when one fills.
type Gateway struct {
	mu        sync.Mutex
	bus       *broker.Bus
	connected bool
	account   string
	currency  string
	balance   float64

	prices    map[string]float64
	bars      map[string][]broker.Bar
	positions map[string]*broker.Position
	working   map[int64]*workingOrder
	placed    []PlacedOrder
	nextID    int64

	faults map[Op]error
	delays map[Op]time.Duration
}

func New(balance float64, currency string) *Gateway {
	if currency == "" {
		currency = "USD"
	}
	return &Gateway{
		bus:       broker.NewBus(),
		account:   "PAPER-001",
		currency:  currency,
		balance:   balance,
		prices:    make(map[string]float64),
		bars:      make(map[string][]broker.Bar),
		positions: make(map[string]*broker.Position),
		working:   make(map[int64]*workingOrder),
		nextID:    1,
		faults:    make(map[Op]error),
		delays:    make(map[Op]time.Duration),
	}
}

// SetFault makes every call of op fail with err. A nil err clears it.
func (g *Gateway) SetFault(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.faults, op)
		return
	}
	g.faults[op] = err
}

// SetDelay makes op wait d (or until ctx ends) before answering.
func (g *Gateway) SetDelay(op Op, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delays[op] = d
}

func (g *Gateway) enter(ctx context.Context, op Op) error {
	g.mu.Lock()
	err := g.faults[op]
	d := g.delays[op]
	connected := g.connected
	g.mu.Unlock()

	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w: %s", broker.ErrTimeout, op)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return err
	}
	if op != OpConnect && !connected {
		return broker.ErrNotConnected
	}
	return nil
}

func (g *Gateway) Connect(ctx context.Context) error {
	if err := g.enter(ctx, OpConnect); err != nil {
		return err
	}
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	g.bus.Publish(broker.Event{Kind: broker.EventConnected})
	return nil
}

func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	was := g.connected
	g.connected = false
	g.mu.Unlock()
	if was {
		g.bus.Publish(broker.Event{Kind: broker.EventDisconnected})
	}
	return nil
}

func (g *Gateway) Subscribe(buffer int) (<-chan broker.Event, func()) {
	return g.bus.Subscribe(buffer)
}

// Subscribers is the number of live event listeners.
func (g *Gateway) Subscribers() int {
	return g.bus.Len()
}

// Publish injects an event as if the broker had sent it.
func (g *Gateway) Publish(ev broker.Event) {
	g.bus.Publish(ev)
}

func (g *Gateway) SetBars(symbol string, bars []broker.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[symbol] = append([]broker.Bar(nil), bars...)
	if n := len(bars); n > 0 {
		g.prices[symbol] = bars[n-1].Close
	}
}

// SetPosition seeds or overwrites a holding. Zero quantity removes it.
func (g *Gateway) SetPosition(c broker.Contract, qty, avgCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if qty == 0 {
		delete(g.positions, c.Symbol)
		return
	}
	g.positions[c.Symbol] = &broker.Position{Account: g.account, Contract: c, Quantity: qty, AvgCost: avgCost}
}

// SetPrice moves the market and fills any working order it crosses.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	g.prices[symbol] = price
	var events []broker.Event
	for _, id := range g.sortedWorkingLocked() {
		w, ok := g.working[id]
		if !ok || !w.Active || w.Contract.Symbol != symbol {
			continue
		}
		if fill, hit := w.triggered(price); hit {
			events = append(events, g.fillLocked(w, fill)...)
		}
	}
	g.mu.Unlock()

	for _, ev := range events {
		g.bus.Publish(ev)
	}
}

func (g *Gateway) Positions(ctx context.Context) ([]broker.Position, error) {
	if err := g.enter(ctx, OpPositions); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.Position, 0, len(g.positions))
	for _, p := range g.positions {
		if p.Quantity != 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (g *Gateway) HistoricalBars(ctx context.Context, c broker.Contract, window, barSize string) ([]broker.Bar, error) {
	if err := g.enter(ctx, OpHistory); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]broker.Bar(nil), g.bars[c.Symbol]...), nil
}

func (g *Gateway) AccountValue(ctx context.Context, currency string) (float64, error) {
	if err := g.enter(ctx, OpAccount); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if currency != "" && currency != g.currency {
		return 0, fmt.Errorf("paper: no account value in %s", currency)
	}
	return g.balance, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, c broker.Contract, o broker.Order) (int64, error) {
	if err := g.enter(ctx, OpOrder); err != nil {
		return 0, err
	}
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	events, err := g.submitLocked(id, c, o, true)
	g.mu.Unlock()
	if err != nil {
		return 0, err
	}

	for _, ev := range events {
		g.bus.Publish(ev)
	}
	return id, nil
}

func (g *Gateway) PlaceBracketOrder(ctx context.Context, c broker.Contract, entry, takeProfit, stopLoss broker.Order) (broker.BracketIDs, error) {
	if err := g.enter(ctx, OpOrder); err != nil {
		return broker.BracketIDs{}, err
	}
	g.mu.Lock()
	ids := broker.BracketIDs{Entry: g.nextID, TakeProfit: g.nextID + 1, StopLoss: g.nextID + 2}
	g.nextID += 3

	takeProfit.ParentID = ids.Entry
	stopLoss.ParentID = ids.Entry

	// children first so they are in the book when the parent fills
	var events []broker.Event
	for _, leg := range []struct {
		id int64
		o  broker.Order
	}{{ids.TakeProfit, takeProfit}, {ids.StopLoss, stopLoss}} {
		evs, err := g.submitLocked(leg.id, c, leg.o, false)
		if err != nil {
			g.mu.Unlock()
			return broker.BracketIDs{}, err
		}
		events = append(events, evs...)
	}
	evs, err := g.submitLocked(ids.Entry, c, entry, true)
	g.mu.Unlock()
	if err != nil {
		return broker.BracketIDs{}, err
	}
	events = append(events, evs...)

	for _, ev := range events {
		g.bus.Publish(ev)
	}
	return ids, nil
}

// Orders lists every order accepted so far, in submission order.
func (g *Gateway) Orders() []PlacedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PlacedOrder(nil), g.placed...)
}

// Balance is the cash balance after realised fills.
func (g *Gateway) Balance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

func (g *Gateway) submitLocked(id int64, c broker.Contract, o broker.Order, active bool) ([]broker.Event, error) {
	if o.Quantity <= 0 {
		return nil, fmt.Errorf("paper: order quantity must be positive, got %v", o.Quantity)
	}
	price, ok := g.prices[c.Symbol]
	if o.Type == broker.Market && !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, c.Symbol)
	}

	w := &workingOrder{ID: id, Contract: c, Order: o, Active: active}
	g.working[id] = w
	g.placed = append(g.placed, PlacedOrder{ID: id, Contract: c, Order: o})

	events := []broker.Event{
		{Kind: broker.EventOpenOrder, Open: &broker.OpenOrder{OrderID: id, Contract: c, Order: o, Status: broker.StatusSubmitted}},
		statusEvent(id, broker.StatusSubmitted, 0, o.Quantity, 0, o.ParentID),
	}
	if !active || !ok {
		return events, nil
	}
	if fill, hit := w.triggered(price); hit {
		events = append(events, g.fillLocked(w, fill)...)
	}
	return events, nil
}

// fillLocked executes w at price, updates the position and cash, and
// handles bracket activation and one-cancels-other. A child that is already
// through its trigger at the last price fills as soon as it activates.
func (g *Gateway) fillLocked(w *workingOrder, price float64) []broker.Event {
	delete(g.working, w.ID)
	o := w.Order

	qty := o.Quantity
	if o.Action == broker.Sell {
		qty = -qty
	}
	g.applyFillLocked(w.Contract, qty, price)
	g.balance -= qty * price

	events := []broker.Event{statusEvent(w.ID, broker.StatusFilled, o.Quantity, 0, price, o.ParentID)}

	var activated []int64
	for _, id := range g.sortedWorkingLocked() {
		other := g.working[id]
		switch {
		case other.Order.ParentID == w.ID:
			other.Active = true
			activated = append(activated, id)
		case o.ParentID != 0 && other.Order.ParentID == o.ParentID:
			delete(g.working, id)
			events = append(events, statusEvent(id, broker.StatusCancelled, 0, other.Order.Quantity, 0, other.Order.ParentID))
		}
	}

	last, ok := g.prices[w.Contract.Symbol]
	if !ok {
		last = price
	}
	for _, id := range activated {
		// an earlier sibling's fill may have cancelled this one
		child, ok := g.working[id]
		if !ok {
			continue
		}
		if fill, hit := child.triggered(last); hit {
			events = append(events, g.fillLocked(child, fill)...)
		}
	}
	return events
}

func (g *Gateway) applyFillLocked(c broker.Contract, qty, price float64) {
	p, ok := g.positions[c.Symbol]
	if !ok {
		p = &broker.Position{Account: g.account, Contract: c}
		g.positions[c.Symbol] = p
	}
	newQty := p.Quantity + qty
	if (p.Quantity >= 0 && qty > 0) || (p.Quantity <= 0 && qty < 0) {
		// adding to the position moves the average cost
		p.AvgCost = (p.AvgCost*abs(p.Quantity) + price*abs(qty)) / abs(newQty)
	}
	p.Quantity = newQty
	if p.Quantity == 0 {
		delete(g.positions, c.Symbol)
	}
}

func (g *Gateway) sortedWorkingLocked() []int64 {
	ids := make([]int64, 0, len(g.working))
	for id := range g.working {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func statusEvent(id int64, status string, filled, remaining, avg float64, parent int64) broker.Event {
	return broker.Event{
		Kind: broker.EventOrderStatus,
		Order: &broker.OrderStatus{
			OrderID:      id,
			Status:       status,
			Filled:       filled,
			Remaining:    remaining,
			AvgFillPrice: avg,
			ParentID:     parent,
		},
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
