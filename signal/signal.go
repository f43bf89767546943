// Package signal talks to the prediction service that turns a bar history
// into a directional call and the risk settings for acting on it.
package signal

import (
	"context"
	"strings"

	"github.com/rustyeddy/tradeagent/broker"
	"github.com/rustyeddy/tradeagent/risk"
)

type Call string

const (
	Buy  Call = "Buy"
	Hold Call = "Hold"
)

// IsBuy is case-insensitive; the service has sent both "Buy" and "BUY".
func (c Call) IsBuy() bool { return strings.EqualFold(string(c), string(Buy)) }

type Response struct {
	Prediction      Call             `json:"prediction"`
	ProbabilityHold float64          `json:"probability_hold,omitempty"`
	ProbabilityBuy  float64          `json:"probability_buy,omitempty"`
	ATR             *float64         `json:"atr_value,omitempty"`
	RiskParams      risk.Params      `json:"risk_params"`
	Contract        *broker.Contract `json:"contract,omitempty"`
}

type Request struct {
	Historical []broker.Bar `json:"historical"`
}

// Service predicts from an ordered bar history, oldest first.
type Service interface {
	Predict(ctx context.Context, bars []broker.Bar) (Response, error)
}
