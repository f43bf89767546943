// Package bridge talks to a broker bridge sidecar over a WebSocket.
//
// The sidecar fronts the broker's native API and relays its callbacks as
// JSON events (the broker.Event wire shape). Requests are one JSON object
// per message:
//
//	{"type":"reqPositions"}                    -> position* positionEnd
//	{"type":"reqHistoricalData","reqId":N,...} -> historicalData* historicalDataEnd
//	{"type":"reqAccountSummary","reqId":N,...} -> accountValue
//	{"type":"reqIds"}                          -> nextValidId
//	{"type":"placeOrder","orderId":N,...}      -> openOrder, orderStatus ...
//
// Responses are matched by listening on the event stream with a bounded
// wait; the listener is detached whether the answer arrives or not.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeagent/broker"
)

type Config struct {
	URL              string
	ClientID         int
	HandshakeTimeout time.Duration
}

type Gateway struct {
	cfg Config
	bus *broker.Bus
	log *zap.Logger

	mu   sync.Mutex // guards conn and serialises writes
	conn *websocket.Conn

	reqID atomic.Int64
}

type request struct {
	Type       string           `json:"type"`
	ReqID      int64            `json:"reqId,omitempty"`
	OrderID    int64            `json:"orderId,omitempty"`
	Contract   *broker.Contract `json:"contract,omitempty"`
	Order      *broker.Order    `json:"order,omitempty"`
	Duration   string           `json:"duration,omitempty"`
	BarSize    string           `json:"barSize,omitempty"`
	WhatToShow string           `json:"whatToShow,omitempty"`
	Tags       string           `json:"tags,omitempty"`
}

func New(cfg Config, log *zap.Logger) *Gateway {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{cfg: cfg, bus: broker.NewBus(), log: log}
}

func (g *Gateway) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: g.cfg.HandshakeTimeout,
	}
	header := http.Header{}
	header.Set("X-Client-Id", strconv.Itoa(g.cfg.ClientID))

	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", g.cfg.URL, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	go g.readLoop(conn)

	g.bus.Publish(broker.Event{Kind: broker.EventConnected})
	return nil
}

func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (g *Gateway) Subscribe(buffer int) (<-chan broker.Event, func()) {
	return g.bus.Subscribe(buffer)
}

func (g *Gateway) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			g.log.Warn("bridge read loop ended", zap.Error(err))
			g.mu.Lock()
			if g.conn == conn {
				g.conn = nil
			}
			g.mu.Unlock()
			g.bus.Publish(broker.Event{Kind: broker.EventDisconnected, Message: err.Error()})
			return
		}

		var ev broker.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			g.log.Warn("bridge sent undecodable event", zap.Error(err), zap.ByteString("raw", msg))
			continue
		}
		// The native API ends a historical series with a bar dated "finished-...".
		if ev.Kind == broker.EventHistoricalData && ev.Bar != nil && strings.HasPrefix(ev.Bar.Date, "finished") {
			ev.Kind = broker.EventHistoricalDataEnd
			ev.Bar = nil
		}
		g.bus.Publish(ev)
	}
}

func (g *Gateway) send(r request) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return broker.ErrNotConnected
	}
	return g.conn.WriteJSON(r)
}

func (g *Gateway) nextReqID() int64 {
	return g.reqID.Add(1)
}

// failOn turns an error event addressed to reqID into a request error.
func failOn(ev broker.Event, reqID int64) error {
	if ev.Kind == broker.EventError && reqID != 0 && ev.ReqID == reqID {
		return &broker.RequestError{ReqID: ev.ReqID, Code: ev.Code, Message: ev.Message}
	}
	if ev.Kind == broker.EventDisconnected {
		return fmt.Errorf("%w: %s", broker.ErrNotConnected, ev.Message)
	}
	return nil
}

func (g *Gateway) Positions(ctx context.Context) ([]broker.Position, error) {
	var out []broker.Position
	err := g.bus.Collect(ctx, func() error {
		return g.send(request{Type: "reqPositions"})
	}, func(ev broker.Event) (bool, error) {
		if err := failOn(ev, 0); err != nil {
			return false, err
		}
		switch ev.Kind {
		case broker.EventPosition:
			if ev.Position != nil && ev.Position.Quantity != 0 {
				out = append(out, *ev.Position)
			}
		case broker.EventPositionEnd:
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return out, nil
}

func (g *Gateway) HistoricalBars(ctx context.Context, c broker.Contract, window, barSize string) ([]broker.Bar, error) {
	rid := g.nextReqID()
	var out []broker.Bar
	err := g.bus.Collect(ctx, func() error {
		return g.send(request{
			Type:       "reqHistoricalData",
			ReqID:      rid,
			Contract:   &c,
			Duration:   window,
			BarSize:    barSize,
			WhatToShow: "TRADES",
		})
	}, func(ev broker.Event) (bool, error) {
		if err := failOn(ev, rid); err != nil {
			return false, err
		}
		if ev.ReqID != rid {
			return false, nil
		}
		switch ev.Kind {
		case broker.EventHistoricalData:
			if ev.Bar != nil {
				out = append(out, *ev.Bar)
			}
		case broker.EventHistoricalDataEnd:
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("historical data %s: %w", c.Symbol, err)
	}
	return out, nil
}

func (g *Gateway) AccountValue(ctx context.Context, currency string) (float64, error) {
	rid := g.nextReqID()
	ev, err := g.bus.Await(ctx, func() error {
		return g.send(request{Type: "reqAccountSummary", ReqID: rid, Tags: "TotalCashValue,NetLiquidation"})
	}, func(ev broker.Event) bool {
		if ev.Kind != broker.EventAccountValue || ev.Account == nil {
			return false
		}
		if ev.ReqID != 0 && ev.ReqID != rid {
			return false
		}
		a := ev.Account
		return (a.Key == "TotalCashValue" || a.Key == "NetLiquidation") && (currency == "" || a.Currency == currency)
	})
	if err != nil {
		return 0, fmt.Errorf("account value: %w", err)
	}
	return ev.Account.Value, nil
}

func (g *Gateway) nextOrderID(ctx context.Context) (int64, error) {
	ev, err := g.bus.Await(ctx, func() error {
		return g.send(request{Type: "reqIds"})
	}, func(ev broker.Event) bool {
		return ev.Kind == broker.EventNextValidID
	})
	if err != nil {
		return 0, fmt.Errorf("next order id: %w", err)
	}
	return ev.OrderID, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, c broker.Contract, o broker.Order) (int64, error) {
	id, err := g.nextOrderID(ctx)
	if err != nil {
		return 0, err
	}
	o.Transmit = true
	if err := g.send(request{Type: "placeOrder", OrderID: id, Contract: &c, Order: &o}); err != nil {
		return 0, fmt.Errorf("place order %d: %w", id, err)
	}
	return id, nil
}

// PlaceBracketOrder sends parent, take-profit and stop-loss with
// consecutive ids. Only the last leg transmits, so the broker activates
// the family atomically.
func (g *Gateway) PlaceBracketOrder(ctx context.Context, c broker.Contract, entry, takeProfit, stopLoss broker.Order) (broker.BracketIDs, error) {
	id, err := g.nextOrderID(ctx)
	if err != nil {
		return broker.BracketIDs{}, err
	}
	ids := broker.BracketIDs{Entry: id, TakeProfit: id + 1, StopLoss: id + 2}

	entry.Transmit = false
	takeProfit.ParentID, takeProfit.Transmit = id, false
	stopLoss.ParentID, stopLoss.Transmit = id, true

	for _, leg := range []struct {
		id int64
		o  broker.Order
	}{{ids.Entry, entry}, {ids.TakeProfit, takeProfit}, {ids.StopLoss, stopLoss}} {
		o := leg.o
		if err := g.send(request{Type: "placeOrder", OrderID: leg.id, Contract: &c, Order: &o}); err != nil {
			return broker.BracketIDs{}, fmt.Errorf("place bracket leg %d: %w", leg.id, err)
		}
	}
	return ids, nil
}
