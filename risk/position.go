package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimal places stop and take-profit
// prices are rounded to when Inputs.Precision is left at zero.
const DefaultPrecision int32 = 2

type Inputs struct {
	Balance   float64
	Price     float64
	Params    Params
	Precision int32
}

type Plan struct {
	Size            float64
	StopPrice       float64
	TakeProfitPrice float64

	// RiskAmount is the budget balance*risk_per_trade; PlannedRisk is what
	// the rounded plan actually loses if the stop is hit. RiskPct is
	// PlannedRisk as a fraction of the balance.
	RiskAmount  float64
	PlannedRisk float64
	RiskPct     float64
	RewardRisk  float64
}

// RoundPrice rounds p half away from zero to places decimals.
func RoundPrice(p float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(p).Round(places).Float64()
	return f
}

// Calculate sizes a long entry at in.Price so that hitting the stop costs
// about balance*risk_per_trade. The size is never below one unit.
func Calculate(in Inputs) (Plan, error) {
	if err := in.Params.Validate(); err != nil {
		return Plan{}, err
	}
	if in.Price <= 0 || math.IsNaN(in.Price) {
		return Plan{}, fmt.Errorf("%w (got %v)", ErrInvalidPrice, in.Price)
	}
	if in.Balance <= 0 || math.IsNaN(in.Balance) {
		return Plan{}, fmt.Errorf("%w (got %v)", ErrInvalidBalance, in.Balance)
	}

	places := in.Precision
	if places <= 0 {
		places = DefaultPrecision
	}

	price := decimal.NewFromFloat(in.Price)
	one := decimal.NewFromInt(1)

	riskAmt := decimal.NewFromFloat(in.Balance).Mul(decimal.NewFromFloat(in.Params.RiskPerTrade))
	perUnit := price.Mul(decimal.NewFromFloat(in.Params.StopLossPct))
	size := riskAmt.Div(perUnit).Floor()
	if size.LessThan(one) {
		size = one
	}

	stop := price.Mul(one.Sub(decimal.NewFromFloat(in.Params.StopLossPct))).Round(places)
	tp := price.Mul(one.Add(decimal.NewFromFloat(in.Params.TakeProfitPct))).Round(places)

	plan := Plan{
		Size:            size.InexactFloat64(),
		StopPrice:       stop.InexactFloat64(),
		TakeProfitPrice: tp.InexactFloat64(),
		RiskAmount:      riskAmt.InexactFloat64(),
	}
	plan.PlannedRisk = PlannedRisk(plan.Size, in.Price, plan.StopPrice)
	plan.RiskPct = RiskPct(plan.PlannedRisk, in.Balance)
	plan.RewardRisk = RR(in.Price, plan.StopPrice, plan.TakeProfitPrice)
	return plan, nil
}
