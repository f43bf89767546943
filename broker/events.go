package broker

import "fmt"

type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventError             EventKind = "error"
	EventOrderStatus       EventKind = "orderStatus"
	EventOpenOrder         EventKind = "openOrder"
	EventPosition          EventKind = "position"
	EventPositionEnd       EventKind = "positionEnd"
	EventHistoricalData    EventKind = "historicalData"
	EventHistoricalDataEnd EventKind = "historicalDataEnd"
	EventAccountValue      EventKind = "accountValue"
	EventNextValidID       EventKind = "nextValidId"
)

const (
	StatusSubmitted = "Submitted"
	StatusFilled    = "Filled"
	StatusCancelled = "Cancelled"
)

// OrderStatus is a lifecycle report for one order.
type OrderStatus struct {
	OrderID      int64   `json:"orderId"`
	Status       string  `json:"status"`
	Filled       float64 `json:"filled"`
	Remaining    float64 `json:"remaining"`
	AvgFillPrice float64 `json:"avgFillPrice"`
	ParentID     int64   `json:"parentId"`
}

func (s OrderStatus) IsFilled() bool {
	return s.Status == StatusFilled
}

type OpenOrder struct {
	OrderID  int64    `json:"orderId"`
	Contract Contract `json:"contract"`
	Order    Order    `json:"order"`
	Status   string   `json:"status"`
}

type AccountValue struct {
	Key      string  `json:"key"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Account  string  `json:"account,omitempty"`
}

// Event is one message on the gateway's stream. Kind selects which of
// the payload fields is set.
type Event struct {
	Kind  EventKind `json:"type"`
	ReqID int64     `json:"reqId,omitempty"`

	Order    *OrderStatus  `json:"order,omitempty"`
	Open     *OpenOrder    `json:"openOrder,omitempty"`
	Position *Position     `json:"position,omitempty"`
	Bar      *Bar          `json:"bar,omitempty"`
	Account  *AccountValue `json:"account,omitempty"`
	OrderID  int64         `json:"orderId,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventOrderStatus:
		if e.Order != nil {
			return fmt.Sprintf("orderStatus id=%d status=%s filled=%g remaining=%g avg=%g parent=%d",
				e.Order.OrderID, e.Order.Status, e.Order.Filled, e.Order.Remaining, e.Order.AvgFillPrice, e.Order.ParentID)
		}
	case EventError:
		return fmt.Sprintf("error code=%d req=%d: %s", e.Code, e.ReqID, e.Message)
	}
	return string(e.Kind)
}

// RequestError is a broker error event tied to a specific request.
type RequestError struct {
	ReqID   int64
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("broker error %d (req %d): %s", e.Code, e.ReqID, e.Message)
}
