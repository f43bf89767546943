// Package scheduler fires a task once per trading day at a fixed wall-clock
// time.
package scheduler

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rustyeddy/tradeagent/logger"
)

// Daily runs a task at Hour:Minute in Location on each allowed weekday.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
	Weekdays []time.Weekday

	// RunImmediately runs the task once before waiting for the first slot.
	RunImmediately bool

	nowFn   func() time.Time
	afterFn func(time.Duration) <-chan time.Time
}

var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler: bad time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// NewDaily builds a weekday schedule for "HH:MM" in the named zone.
func NewDaily(at, zone string) (*Daily, error) {
	h, m, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return &Daily{Hour: h, Minute: m, Location: loc, Weekdays: Weekdays}, nil
}

func (d *Daily) allowed(w time.Weekday) bool {
	if len(d.Weekdays) == 0 {
		return true
	}
	for _, a := range d.Weekdays {
		if a == w {
			return true
		}
	}
	return false
}

// Next returns the first slot strictly after now.
func (d *Daily) Next(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	for i := 0; i < 8; i++ {
		if day.After(local) && d.allowed(day.Weekday()) {
			return day
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return day
}

func (d *Daily) String() string {
	loc := "UTC"
	if d.Location != nil {
		loc = d.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", d.Hour, d.Minute, loc)
}

// Start calls task at every slot until ctx is done. It blocks.
func (d *Daily) Start(ctx context.Context, task func(context.Context)) {
	if task == nil {
		logger.Warnf("scheduler: task is nil, exit")
		return
	}
	now := d.nowFn
	if now == nil {
		now = time.Now
	}
	after := d.afterFn
	if after == nil {
		after = time.After
	}

	logger.Infof("scheduler: started at=%s run_immediately=%v", d, d.RunImmediately)
	if d.RunImmediately {
		task(ctx)
	}

	for {
		t := now()
		next := d.Next(t)
		wait := next.Sub(t)
		logger.Infof("scheduler: next run at %s (in %s)", next.Format(time.RFC3339), wait.Truncate(time.Second))

		select {
		case <-ctx.Done():
			logger.Infof("scheduler: ctx done, exit")
			return
		case <-after(wait):
		}
		task(ctx)
	}
}
