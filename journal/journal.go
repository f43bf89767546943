// Package journal is the agent's append-only audit trail of the orders it
// submits and the fills it classifies.
package journal

import (
	"context"
	"time"
)

// OrderRecord is written once per submitted order leg.
type OrderRecord struct {
	ID         string
	CycleID    string
	Time       time.Time
	OrderID    int64
	ParentID   int64
	Symbol     string
	Action     string
	OrderType  string
	Quantity   float64
	LimitPrice float64
	StopPrice  float64
	Reason     string
}

type FillKind string

const (
	FillEntry FillKind = "entry"
	FillExit  FillKind = "exit"
)

// FillRecord is written for every fill that changed the trade state.
type FillRecord struct {
	ID       string
	Time     time.Time
	OrderID  int64
	ParentID int64
	Symbol   string
	Kind     FillKind
	Quantity float64
	Price    float64
}

type Journal interface {
	RecordOrder(ctx context.Context, o OrderRecord) error
	RecordFill(ctx context.Context, f FillRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOrder(context.Context, OrderRecord) error { return nil }
func (Nop) RecordFill(context.Context, FillRecord) error   { return nil }
func (Nop) Close() error                                   { return nil }
