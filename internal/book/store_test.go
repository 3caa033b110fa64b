package book

import (
	"testing"
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

func upd(ts time.Time, bids, asks []model.PriceLevel) model.OrderBookUpdate {
	return model.OrderBookUpdate{Timestamp: ts, Bids: bids, Asks: asks}
}

func lvl(p, q float64) model.PriceLevel { return model.PriceLevel{Price: p, Qty: q} }

func TestStore_LastAtOrBefore(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	s.AddUpdate(upd(base, []model.PriceLevel{lvl(99, 1)}, nil))
	s.AddUpdate(upd(base.Add(10*time.Second), []model.PriceLevel{lvl(100, 2)}, nil))
	s.AddUpdate(upd(base.Add(20*time.Second), []model.PriceLevel{lvl(101, 3)}, nil))

	// Exactly at a timestamp is included.
	u, ok := s.LastAtOrBefore(base.Add(10 * time.Second))
	if !ok {
		t.Fatal("LastAtOrBefore returned false")
	}
	if u.Bids[0].Price != 100 {
		t.Errorf("got update with bid %v, want 100", u.Bids[0].Price)
	}

	// Between updates returns the earlier one.
	u, _ = s.LastAtOrBefore(base.Add(15 * time.Second))
	if u.Bids[0].Price != 100 {
		t.Errorf("got update with bid %v, want 100", u.Bids[0].Price)
	}

	// Before all updates: none.
	if _, ok := s.LastAtOrBefore(base.Add(-time.Second)); ok {
		t.Error("LastAtOrBefore before first update returned true")
	}

	// Reads never mutate.
	if s.Len() != 3 {
		t.Errorf("Len() = %d after reads, want 3", s.Len())
	}
}

func TestStore_Range(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.AddUpdate(upd(base.Add(time.Duration(i)*10*time.Second), []model.PriceLevel{lvl(100, 1)}, nil))
	}

	// Inclusive on both ends.
	got := s.Range(base.Add(10*time.Second), base.Add(30*time.Second))
	if len(got) != 3 {
		t.Errorf("Range returned %d updates, want 3", len(got))
	}

	// Reversed bounds are swapped.
	got = s.Range(base.Add(30*time.Second), base.Add(10*time.Second))
	if len(got) != 3 {
		t.Errorf("reversed Range returned %d updates, want 3", len(got))
	}
}

func TestStore_BestBidAsk(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.AddUpdate(upd(base,
		[]model.PriceLevel{lvl(99.5, 1), lvl(100, 2), lvl(98, 1)},
		[]model.PriceLevel{lvl(100.5, 1), lvl(101, 2)}))

	bid, ask, ok := s.BestBidAsk(base)
	if !ok {
		t.Fatal("BestBidAsk returned false")
	}
	if bid != 100 || ask != 100.5 {
		t.Errorf("BestBidAsk = %v/%v, want 100/100.5", bid, ask)
	}

	// One-sided update yields no best pair.
	s2 := NewStore()
	s2.AddUpdate(upd(base, []model.PriceLevel{lvl(100, 1)}, nil))
	if _, _, ok := s2.BestBidAsk(base); ok {
		t.Error("BestBidAsk with empty ask side returned true")
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.AddUpdate(upd(base.Add(time.Duration(i)*time.Minute), []model.PriceLevel{lvl(100, 1)}, nil))
	}

	removed := s.PurgeOlderThan(base.Add(2 * time.Minute))
	if removed != 2 {
		t.Errorf("PurgeOlderThan removed %d, want 2", removed)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	// Entry exactly at cutoff survives.
	if _, ok := s.LastAtOrBefore(base.Add(2 * time.Minute)); !ok {
		t.Error("entry at cutoff was purged")
	}
}
