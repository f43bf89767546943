package agent

import (
	"fmt"
	"time"
)

// MarketWindow is the daily span during which test mode may act on a
// stored intent.
type MarketWindow struct {
	Hour     int
	Minute   int
	Length   time.Duration
	Location *time.Location
}

// DefaultWindow is the NYSE open as seen from UTC, one minute wide.
func DefaultWindow() MarketWindow {
	return MarketWindow{Hour: 15, Minute: 30, Length: time.Minute, Location: time.UTC}
}

// Open reports whether t falls in [start, start+Length) on t's day.
func (w MarketWindow) Open(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	length := w.Length
	if length <= 0 {
		length = time.Minute
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), w.Hour, w.Minute, 0, 0, loc)
	return !local.Before(start) && local.Before(start.Add(length))
}

func (w MarketWindow) String() string {
	loc := "UTC"
	if w.Location != nil {
		loc = w.Location.String()
	}
	return fmt.Sprintf("%02d:%02d+%s %s", w.Hour, w.Minute, w.Length, loc)
}
