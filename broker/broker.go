package broker

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("broker: not connected")
	ErrTimeout      = errors.New("broker: timed out waiting for response")
)

// Gateway is the capability the agent consumes from a broker connection.
// Every blocking call honours ctx; callers bound the wait with a deadline.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// Positions returns every non-zero holding on the account.
	Positions(ctx context.Context) ([]Position, error)
	HistoricalBars(ctx context.Context, c Contract, window, barSize string) ([]Bar, error)
	AccountValue(ctx context.Context, currency string) (float64, error)

	PlaceOrder(ctx context.Context, c Contract, o Order) (int64, error)
	PlaceBracketOrder(ctx context.Context, c Contract, entry, takeProfit, stopLoss Order) (BracketIDs, error)

	// Subscribe attaches a listener to the order-lifecycle and
	// connectivity event stream. The returned func detaches it.
	Subscribe(buffer int) (<-chan Event, func())
}

// Contract identifies a tradable instrument.
type Contract struct {
	Symbol          string `json:"symbol" yaml:"symbol"`
	SecType         string `json:"secType" yaml:"sec_type"`
	Exchange        string `json:"exchange" yaml:"exchange"`
	PrimaryExchange string `json:"primaryExch,omitempty" yaml:"primary_exchange,omitempty"`
	Currency        string `json:"currency" yaml:"currency"`
}

func (c Contract) IsZero() bool {
	return c.Symbol == ""
}

// Position is one line of the broker's position report.
type Position struct {
	Account  string   `json:"account,omitempty"`
	Contract Contract `json:"contract"`
	Quantity float64  `json:"position"`
	AvgCost  float64  `json:"avgCost"`
}

// Bar is one OHLCV row of historical data.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

func (a Action) Opposite() Action {
	if a == Buy {
		return Sell
	}
	return Buy
}

type OrderType string

const (
	Market OrderType = "MKT"
	Limit  OrderType = "LMT"
	Stop   OrderType = "STP"
)

type Order struct {
	Action     Action    `json:"action"`
	Type       OrderType `json:"orderType"`
	Quantity   float64   `json:"totalQuantity"`
	LimitPrice float64   `json:"lmtPrice,omitempty"`
	StopPrice  float64   `json:"auxPrice,omitempty"`
	ParentID   int64     `json:"parentId,omitempty"`
	Transmit   bool      `json:"transmit"`
}

func MarketOrder(a Action, qty float64) Order {
	return Order{Action: a, Type: Market, Quantity: qty, Transmit: true}
}

func LimitOrder(a Action, qty, price float64) Order {
	return Order{Action: a, Type: Limit, Quantity: qty, LimitPrice: price, Transmit: true}
}

func StopOrder(a Action, qty, price float64) Order {
	return Order{Action: a, Type: Stop, Quantity: qty, StopPrice: price, Transmit: true}
}

// BracketIDs are the order ids assigned to the three legs of a bracket.
type BracketIDs struct {
	Entry      int64
	TakeProfit int64
	StopLoss   int64
}
