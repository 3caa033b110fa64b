package window

import (
	"time"

	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/tradebuf"
)

// Aggregator slices the trade buffer into closed windows as the clock
// advances. One aggregator serves one (symbol, interval) pair and is driven
// by a single goroutine.
type Aggregator struct {
	buf    *tradebuf.Buffer
	symbol string
	clock  *Clock
}

// NewAggregator creates an aggregator over the given buffer.
func NewAggregator(buf *tradebuf.Buffer, symbol string, interval time.Duration) (*Aggregator, error) {
	clock, err := NewClock(interval)
	if err != nil {
		return nil, err
	}
	return &Aggregator{buf: buf, symbol: symbol, clock: clock}, nil
}

// Clock exposes the underlying window clock.
func (a *Aggregator) Clock() *Clock { return a.clock }

// OnTrade advances the clock to the trade timestamp and returns every window
// that closed as a result, in chronological order. Windows with no trades are
// returned with an empty slice; gaps never break the cadence.
func (a *Aggregator) OnTrade(ts time.Time) []model.ClosedWindow {
	a.clock.EnsureStarted(ts)

	moved := a.clock.AdvanceUntil(ts)
	if moved == 0 {
		return nil
	}

	interval := a.clock.Interval()
	cur := a.clock.Current()

	closed := make([]model.ClosedWindow, 0, moved)
	for i := moved; i >= 1; i-- {
		start := cur.Start.Add(-time.Duration(i) * interval)
		end := start.Add(interval)
		closed = append(closed, model.ClosedWindow{
			Start:  start,
			End:    end,
			Trades: a.buf.QueryRange(start, end, a.symbol),
		})
	}
	return closed
}

// ForceCloseCurrent emits the in-progress window with the trades observed so
// far, then advances the boundaries one interval so later calls stay
// consistent. Used at shutdown so the last partial window is not lost.
func (a *Aggregator) ForceCloseCurrent() model.ClosedWindow {
	if !a.clock.Started() {
		a.clock.EnsureStarted(time.Now().UTC())
	}

	cur := a.clock.Current()
	w := model.ClosedWindow{
		Start:  cur.Start,
		End:    cur.End,
		Trades: a.buf.QueryRange(cur.Start, cur.End, a.symbol),
	}

	a.clock.start = cur.End
	a.clock.end = cur.End.Add(a.clock.Interval())
	return w
}

// SetInterval changes the window size mid-stream. Partial data accumulated
// under the old interval is not reconciled.
func (a *Aggregator) SetInterval(interval time.Duration, reference time.Time) error {
	return a.clock.SetInterval(interval, reference)
}
