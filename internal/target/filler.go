package target

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/candle-data/internal/model"
)

// PriceLookup returns the close price for a timestamp, or false when the
// value is not yet known. Supplied by the dataset store; it must report
// absence, not fail.
type PriceLookup func(ts time.Time) (float64, bool)

// Config holds filler settings.
type Config struct {
	HorizonsSec   []int
	CommissionBps float64
	SlippageBps   float64
	// MaxWait bounds how long a pair may stay pending past its target time
	// before it resolves as undetermined. 0 keeps pairs pending forever.
	MaxWait time.Duration
}

// pendingLabel is one (row, horizon) pair waiting for its future price.
// The friction captured at registration is the one used for profitability,
// regardless of later configuration changes.
type pendingLabel struct {
	rowID       uuid.UUID
	baseTime    time.Time
	basePrice   float64
	frictionPct float64
}

// Filler maintains per-horizon waiting sets and resolves pairs as their
// horizons arrive. One pipeline goroutine owns it.
type Filler struct {
	horizons    []int
	frictionPct float64
	maxWait     time.Duration
	waiting     map[int][]pendingLabel

	registered   int64
	resolved     int64
	undetermined int64
}

// NewFiller validates the configuration and builds a filler.
// Friction percent = (commission + slippage bps) / 100.
func NewFiller(cfg Config) (*Filler, error) {
	if len(cfg.HorizonsSec) == 0 {
		return nil, errors.New("target filler needs at least one horizon")
	}
	if cfg.CommissionBps < 0 || cfg.SlippageBps < 0 {
		return nil, errors.New("commission and slippage bps must be >= 0")
	}
	if cfg.MaxWait < 0 {
		return nil, errors.New("max wait must be >= 0")
	}

	seen := make(map[int]struct{})
	horizons := make([]int, 0, len(cfg.HorizonsSec))
	for _, h := range cfg.HorizonsSec {
		if h < 1 {
			return nil, fmt.Errorf("horizon must be >= 1s, got %d", h)
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)

	waiting := make(map[int][]pendingLabel, len(horizons))
	for _, h := range horizons {
		waiting[h] = nil
	}

	return &Filler{
		horizons:    horizons,
		frictionPct: (cfg.CommissionBps + cfg.SlippageBps) / 100,
		maxWait:     cfg.MaxWait,
		waiting:     waiting,
	}, nil
}

// FrictionPct returns the filler's current friction threshold in percent.
func (f *Filler) FrictionPct() float64 { return f.frictionPct }

// Horizons returns the configured horizons in seconds, ascending.
func (f *Filler) Horizons() []int { return f.horizons }

// RegisterRow adds the row to every horizon's waiting set, capturing the base
// timestamp, base price and the current friction percentage.
func (f *Filler) RegisterRow(rowID uuid.UUID, baseTime time.Time, basePrice float64) {
	p := pendingLabel{
		rowID:       rowID,
		baseTime:    baseTime,
		basePrice:   basePrice,
		frictionPct: f.frictionPct,
	}
	for _, h := range f.horizons {
		f.waiting[h] = append(f.waiting[h], p)
	}
	f.registered++
}

// OnTick attempts to resolve every waiting pair whose horizon has arrived,
// using lookup for the future price. Pairs whose price is not yet available
// stay pending and are retried on the next tick, unless the max-wait bound
// has expired, in which case they resolve as undetermined. Each resolved pair
// is removed from its waiting set, so it can never resolve twice.
func (f *Filler) OnTick(currentTS time.Time, lookup PriceLookup) []model.ResolvedLabel {
	var out []model.ResolvedLabel

	for _, h := range f.horizons {
		horizon := time.Duration(h) * time.Second
		stillOpen := f.waiting[h][:0]

		for _, p := range f.waiting[h] {
			targetTS := p.baseTime.Add(horizon)
			if currentTS.Before(targetTS) {
				stillOpen = append(stillOpen, p)
				continue
			}

			future, known := lookup(targetTS)
			if !known {
				if f.maxWait > 0 && currentTS.Sub(targetTS) > f.maxWait {
					out = append(out, model.ResolvedLabel{
						RowID:        p.rowID,
						HorizonSec:   h,
						Undetermined: true,
						ResolvedAt:   currentTS,
					})
					f.undetermined++
					continue
				}
				stillOpen = append(stillOpen, p)
				continue
			}

			label := model.ResolvedLabel{
				RowID:       p.rowID,
				HorizonSec:  h,
				FuturePrice: future,
				ResolvedAt:  currentTS,
			}
			if p.basePrice != 0 {
				dpp := (future - p.basePrice) / p.basePrice * 100
				label.DeltaPct = dpp
				label.HasDelta = true
				label.LongProfitable = dpp > +p.frictionPct
				label.ShortProfitable = dpp < -p.frictionPct
			}
			out = append(out, label)
			f.resolved++
		}

		f.waiting[h] = stillOpen
	}

	return out
}

// PendingCount returns the number of waiting (row, horizon) pairs.
func (f *Filler) PendingCount() int {
	n := 0
	for _, pairs := range f.waiting {
		n += len(pairs)
	}
	return n
}

// Stats returns filler counters.
func (f *Filler) Stats() Stats {
	return Stats{
		Pending:      f.PendingCount(),
		Registered:   f.registered,
		Resolved:     f.resolved,
		Undetermined: f.undetermined,
	}
}

// Stats contains filler counters.
type Stats struct {
	Pending      int
	Registered   int64
	Resolved     int64
	Undetermined int64
}
