package tradebuf

import (
	"fmt"
	"sort"
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

// Buffer is a fixed-capacity FIFO ring of trade events with a hash index for
// deduplication. It is not safe for concurrent use; one pipeline goroutine
// owns it.
type Buffer struct {
	slots    []slot
	head     int // oldest entry
	count    int
	capacity int
	index    map[string]struct{}

	// Stats
	duplicates int64
	evictions  int64
}

type slot struct {
	trade model.TradeEvent
	key   string
}

// New creates a buffer holding at most capacity trades.
func New(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("trade buffer capacity must be >= 1, got %d", capacity)
	}
	return &Buffer{
		slots:    make([]slot, capacity),
		capacity: capacity,
		index:    make(map[string]struct{}, capacity),
	}, nil
}

// Append inserts a trade unless its dedup key is already present.
// At capacity, the oldest entry is evicted and its index entry removed in the
// same step, so the index never holds a key without a live slot.
func (b *Buffer) Append(trade model.TradeEvent) {
	key := trade.DedupKey()
	if _, dup := b.index[key]; dup {
		b.duplicates++
		return
	}

	if b.count == b.capacity {
		oldest := &b.slots[b.head]
		delete(b.index, oldest.key)
		*oldest = slot{}
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.evictions++
	}

	tail := (b.head + b.count) % b.capacity
	b.slots[tail] = slot{trade: trade, key: key}
	b.count++
	b.index[key] = struct{}{}
}

// QueryRange returns all trades with start <= ts < end, ordered by timestamp
// ascending. A non-empty symbol restricts the result to that symbol.
// Non-destructive.
func (b *Buffer) QueryRange(start, end time.Time, symbol string) []model.TradeEvent {
	var out []model.TradeEvent
	for i := 0; i < b.count; i++ {
		tr := b.slots[(b.head+i)%b.capacity].trade
		if tr.Timestamp.Before(start) || !tr.Timestamp.Before(end) {
			continue
		}
		if symbol != "" && tr.Symbol != symbol {
			continue
		}
		out = append(out, tr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// PurgeOlderThan removes entries with timestamp < cutoff and returns how many
// were removed.
func (b *Buffer) PurgeOlderThan(cutoff time.Time) int {
	kept := make([]slot, 0, b.count)
	removed := 0
	for i := 0; i < b.count; i++ {
		s := b.slots[(b.head+i)%b.capacity]
		if s.trade.Timestamp.Before(cutoff) {
			delete(b.index, s.key)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	if removed == 0 {
		return 0
	}

	clear(b.slots)
	copy(b.slots, kept)
	b.head = 0
	b.count = len(kept)
	return removed
}

// Len returns the number of buffered trades.
func (b *Buffer) Len() int { return b.count }

// Stats returns buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Len:        b.count,
		Capacity:   b.capacity,
		Duplicates: b.duplicates,
		Evictions:  b.evictions,
	}
}

// Stats contains buffer counters. Evictions are expected steady-state
// behavior, not failures.
type Stats struct {
	Len        int
	Capacity   int
	Duplicates int64
	Evictions  int64
}
