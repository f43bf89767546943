package state

import (
	"errors"
	"fmt"
)

// DefaultKey is the store key the trade state lives under.
const DefaultKey = "trade_state"

type Position string

const (
	PositionNone Position = ""
	PositionLong Position = "long"
)

// Intent is a deferred action recorded by test mode when a signal
// arrives outside the execution window.
type Intent string

const (
	IntentNone Intent = ""
	IntentBuy  Intent = "buy"
)

// TradeState is the single persisted aggregate. The JSON field names are
// the on-disk schema and must stay stable.
type TradeState struct {
	Position      Position `json:"position,omitempty"`
	EntryPrice    float64  `json:"entryPrice,omitempty"`
	Size          float64  `json:"size,omitempty"`
	ParentOrderID int64    `json:"parentOrderId,omitempty"`
	Intent        Intent   `json:"intent,omitempty"`

	PauseNewEntries bool `json:"pause_new_entries,omitempty"`
}

var ErrInvalidState = errors.New("invalid trade state")

// Default is the rest shape: no position, no intent, entries not paused.
func Default() TradeState {
	return TradeState{}
}

func (s TradeState) IsLong() bool {
	return s.Position == PositionLong
}

// HasParent reports whether an entry order family is being tracked.
func (s TradeState) HasParent() bool {
	return s.ParentOrderID != 0
}

// ClearTrade drops every trade-specific field. Intent and the pause flag
// are separate axes and survive.
func (s *TradeState) ClearTrade() {
	s.Position = PositionNone
	s.EntryPrice = 0
	s.Size = 0
	s.ParentOrderID = 0
}

// Open records a long position.
func (s *TradeState) Open(size, entryPrice float64, parentOrderID int64) {
	s.Position = PositionLong
	s.Size = size
	s.EntryPrice = entryPrice
	s.ParentOrderID = parentOrderID
}

// Validate checks the shape invariants. A long position adopted from the
// broker by reconciliation may legitimately have no parent order.
func (s TradeState) Validate() error {
	switch s.Position {
	case PositionLong:
		if s.Size <= 0 {
			return fmt.Errorf("%w: long position with size %v", ErrInvalidState, s.Size)
		}
		if s.EntryPrice <= 0 {
			return fmt.Errorf("%w: long position with entry price %v", ErrInvalidState, s.EntryPrice)
		}
	case PositionNone:
		if s.Size != 0 || s.EntryPrice != 0 {
			return fmt.Errorf("%w: stale trade fields without a position", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: unknown position %q", ErrInvalidState, s.Position)
	}
	switch s.Intent {
	case IntentNone, IntentBuy:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidState, s.Intent)
	}
	return nil
}

func (s TradeState) String() string {
	pos := string(s.Position)
	if pos == "" {
		pos = "none"
	}
	return fmt.Sprintf("position=%s size=%g entry=%g parent=%d intent=%q paused=%v",
		pos, s.Size, s.EntryPrice, s.ParentOrderID, s.Intent, s.PauseNewEntries)
}
