package paper

import "github.com/rustyeddy/tradeagent/broker"

// workingOrder is an order resting in the paper book.
type workingOrder struct {
	ID       int64
	Contract broker.Contract
	Order    broker.Order
	Active   bool // child legs wait for their parent to fill
}

// triggered reports whether price crosses the order and the fill price.
func (w *workingOrder) triggered(price float64) (float64, bool) {
	o := w.Order
	switch o.Type {
	case broker.Market:
		return price, true
	case broker.Limit:
		if o.Action == broker.Buy && price <= o.LimitPrice {
			return o.LimitPrice, true
		}
		if o.Action == broker.Sell && price >= o.LimitPrice {
			return o.LimitPrice, true
		}
	case broker.Stop:
		if o.Action == broker.Sell && price <= o.StopPrice {
			return price, true
		}
		if o.Action == broker.Buy && price >= o.StopPrice {
			return price, true
		}
	}
	return 0, false
}

// PlacedOrder is the record of an order the gateway accepted.
type PlacedOrder struct {
	ID       int64
	Contract broker.Contract
	Order    broker.Order
}
