package book

import (
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

// Store is an append-only log of raw order-book updates, ordered by arrival.
// It is not safe for concurrent use; one pipeline goroutine owns it.
type Store struct {
	updates []model.OrderBookUpdate
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// AddUpdate appends a normalized update to the log.
func (s *Store) AddUpdate(u model.OrderBookUpdate) {
	s.updates = append(s.updates, u)
}

// LastAtOrBefore returns the most recent individual update with timestamp <= t.
// This is the latest raw message, not a merged depth state.
func (s *Store) LastAtOrBefore(t time.Time) (model.OrderBookUpdate, bool) {
	for i := len(s.updates) - 1; i >= 0; i-- {
		if !s.updates[i].Timestamp.After(t) {
			return s.updates[i], true
		}
	}
	return model.OrderBookUpdate{}, false
}

// Range returns all updates with start <= timestamp <= end (inclusive both
// ends). Reversed bounds are swapped. Non-destructive.
func (s *Store) Range(start, end time.Time) []model.OrderBookUpdate {
	if end.Before(start) {
		start, end = end, start
	}
	var out []model.OrderBookUpdate
	for _, u := range s.updates {
		if u.Timestamp.Before(start) || u.Timestamp.After(end) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// BestBidAsk returns the best bid and ask prices from the latest raw update
// at or before t. False when no update qualifies or a side is empty.
func (s *Store) BestBidAsk(t time.Time) (bid, ask float64, ok bool) {
	u, found := s.LastAtOrBefore(t)
	if !found || len(u.Bids) == 0 || len(u.Asks) == 0 {
		return 0, 0, false
	}
	bid = u.Bids[0].Price
	for _, l := range u.Bids[1:] {
		if l.Price > bid {
			bid = l.Price
		}
	}
	ask = u.Asks[0].Price
	for _, l := range u.Asks[1:] {
		if l.Price < ask {
			ask = l.Price
		}
	}
	return bid, ask, true
}

// PurgeOlderThan removes updates with timestamp < cutoff and returns how many
// were removed. The only mutation besides AddUpdate.
func (s *Store) PurgeOlderThan(cutoff time.Time) int {
	kept := s.updates[:0]
	for _, u := range s.updates {
		if !u.Timestamp.Before(cutoff) {
			kept = append(kept, u)
		}
	}
	removed := len(s.updates) - len(kept)
	s.updates = kept
	return removed
}

// Len returns the number of stored updates.
func (s *Store) Len() int { return len(s.updates) }
