package window

import (
	"fmt"
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

// Clock tracks the current half-open window [start, end). It is uninitialized
// until the first observed timestamp.
type Clock struct {
	interval time.Duration
	start    time.Time
	end      time.Time
	started  bool
}

// NewClock creates a clock for the given interval. The interval must be a
// positive whole number of seconds; anything else is a configuration error.
func NewClock(interval time.Duration) (*Clock, error) {
	if err := checkInterval(interval); err != nil {
		return nil, err
	}
	return &Clock{interval: interval}, nil
}

func checkInterval(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("window interval must be >= 1s, got %v", interval)
	}
	if interval%time.Second != 0 {
		return fmt.Errorf("window interval must be a whole number of seconds, got %v", interval)
	}
	return nil
}

// floorToInterval floors ts to the nearest interval multiple on epoch seconds.
func floorToInterval(ts time.Time, interval time.Duration) time.Time {
	sec := int64(interval / time.Second)
	epoch := ts.Unix()
	return time.Unix(epoch-epoch%sec, 0).UTC()
}

// Interval returns the current window length.
func (c *Clock) Interval() time.Duration { return c.interval }

// Started reports whether the clock has observed a timestamp.
func (c *Clock) Started() bool { return c.started }

// Current returns the current window boundary. Zero until started.
func (c *Clock) Current() model.WindowBoundary {
	return model.WindowBoundary{Start: c.start, End: c.end}
}

// EnsureStarted initializes the boundaries from the first observed timestamp.
// Subsequent calls are no-ops.
func (c *Clock) EnsureStarted(ts time.Time) {
	if c.started {
		return
	}
	c.start = floorToInterval(ts, c.interval)
	c.end = c.start.Add(c.interval)
	c.started = true
}

// AdvanceUntil shifts the window forward while ts >= end and returns the
// number of shifts. Several shifts in one call means trades were absent for
// whole intervals; the caller owes a closed window per shift.
func (c *Clock) AdvanceUntil(ts time.Time) int {
	if !c.started {
		c.EnsureStarted(ts)
		return 0
	}
	moved := 0
	for !ts.Before(c.end) {
		c.start = c.end
		c.end = c.start.Add(c.interval)
		moved++
	}
	return moved
}

// SetInterval changes the window size and re-floors the boundaries from the
// reference time (zero means now). Any partially accumulated window under the
// old interval is abandoned, not reconciled; behavior across such a change is
// undefined for in-flight data.
func (c *Clock) SetInterval(interval time.Duration, reference time.Time) error {
	if err := checkInterval(interval); err != nil {
		return err
	}
	if reference.IsZero() {
		reference = time.Now().UTC()
	}
	c.interval = interval
	c.start = floorToInterval(reference, interval)
	c.end = c.start.Add(interval)
	c.started = true
	return nil
}
