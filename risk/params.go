package risk

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStopLoss = errors.New("risk: stop_loss_pct must be > 0")
	ErrInvalidPrice    = errors.New("risk: price must be > 0")
	ErrInvalidBalance  = errors.New("risk: balance must be > 0")
)

// Params are the per-trade risk settings delivered with each prediction.
// All three are fractions: 0.02 is two percent.
type Params struct {
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	RiskPerTrade  float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
}

func (p Params) Validate() error {
	if p.StopLossPct <= 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidStopLoss, p.StopLossPct)
	}
	if p.TakeProfitPct < 0 {
		return fmt.Errorf("risk: take_profit_pct must be >= 0 (got %v)", p.TakeProfitPct)
	}
	if p.RiskPerTrade < 0 {
		return fmt.Errorf("risk: risk_per_trade must be >= 0 (got %v)", p.RiskPerTrade)
	}
	return nil
}
