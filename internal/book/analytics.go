package book

import (
	"math"
	"sort"

	"github.com/rickgao/candle-data/internal/model"
)

// LatestState folds a window of updates into the last-seen quantity per price
// level, per side. A zero quantity removes the level from the latest state.
func LatestState(updates []model.OrderBookUpdate) (bids, asks map[float64]float64) {
	bids = make(map[float64]float64)
	asks = make(map[float64]float64)
	for _, u := range updates {
		applyLatest(bids, u.Bids)
		applyLatest(asks, u.Asks)
	}
	return bids, asks
}

func applyLatest(state map[float64]float64, levels []model.PriceLevel) {
	for _, l := range levels {
		if l.Qty > 0 {
			state[l.Price] = l.Qty
		} else {
			delete(state, l.Price)
		}
	}
}

// PeakState folds a window of updates into the maximum quantity ever observed
// per price level. Removed levels keep their historical peaks.
func PeakState(updates []model.OrderBookUpdate) (bids, asks map[float64]float64) {
	bids = make(map[float64]float64)
	asks = make(map[float64]float64)
	for _, u := range updates {
		applyPeak(bids, u.Bids)
		applyPeak(asks, u.Asks)
	}
	return bids, asks
}

func applyPeak(state map[float64]float64, levels []model.PriceLevel) {
	for _, l := range levels {
		if l.Qty <= 0 {
			continue
		}
		if cur, seen := state[l.Price]; !seen || l.Qty > cur {
			state[l.Price] = l.Qty
		}
	}
}

// DepthBand is the aggregated quantity within a percentage band around the
// midpoint, split by side.
type DepthBand struct {
	Bps    int
	BidQty float64
	AskQty float64
}

// DepthBands sums latest-state quantity in bands around the midpoint
// (bestBid+bestAsk)/2. Returns nil when either side is empty or the book is
// crossed, since there is no meaningful midpoint.
func DepthBands(lastBids, lastAsks map[float64]float64, bandsBps []int) []DepthBand {
	if len(lastBids) == 0 || len(lastAsks) == 0 {
		return nil
	}
	bestBid := maxKey(lastBids)
	bestAsk := minKey(lastAsks)
	if bestAsk <= bestBid {
		return nil
	}
	mid := (bestBid + bestAsk) / 2

	out := make([]DepthBand, 0, len(bandsBps))
	for _, bps := range bandsBps {
		band := float64(bps) / 10_000
		lowerCut := mid * (1 - band)
		upperCut := mid * (1 + band)

		var bidQty, askQty float64
		for p, q := range lastBids {
			if p >= lowerCut && p <= mid {
				bidQty += q
			}
		}
		for p, q := range lastAsks {
			if p >= mid && p <= upperCut {
				askQty += q
			}
		}
		out = append(out, DepthBand{Bps: bps, BidQty: bidQty, AskQty: askQty})
	}
	return out
}

// DetectWalls returns the levels whose quantity is at least
// max(k * median(quantities), percentile(quantities, pct)), sorted by
// quantity descending.
func DetectWalls(levels map[float64]float64, k float64, pct int) []model.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	qtys := make([]float64, 0, len(levels))
	for _, q := range levels {
		qtys = append(qtys, q)
	}

	med := median(qtys)
	thr := percentile(qtys, float64(pct))
	if med > 0 && k*med > thr {
		thr = k * med
	}

	var walls []model.PriceLevel
	for p, q := range levels {
		if q >= thr && q > 0 {
			walls = append(walls, model.PriceLevel{Price: p, Qty: q})
		}
	}
	sort.Slice(walls, func(i, j int) bool { return walls[i].Qty > walls[j].Qty })
	return walls
}

// ChurnStats counts quantity changes per price level across an update
// sequence. A level whose value changes between consecutive observations
// counts once per change; adds and removals are included once the level has
// been seen.
type ChurnStats struct {
	Updates          int
	BidLevelsChanged int
	AskLevelsChanged int
}

// Churn computes churn statistics over a window of updates.
func Churn(updates []model.OrderBookUpdate) ChurnStats {
	st := ChurnStats{Updates: len(updates)}
	lastBid := make(map[float64]float64)
	lastAsk := make(map[float64]float64)

	for _, u := range updates {
		for _, l := range u.Bids {
			if prev, seen := lastBid[l.Price]; seen && l.Qty != prev {
				st.BidLevelsChanged++
			}
			lastBid[l.Price] = l.Qty
		}
		for _, l := range u.Asks {
			if prev, seen := lastAsk[l.Price]; seen && l.Qty != prev {
				st.AskLevelsChanged++
			}
			lastAsk[l.Price] = l.Qty
		}
	}
	return st
}

// Summary is the one-row condensation of a window of updates. Fields without
// a defined value (one side missing, crossed book) are NaN.
type Summary struct {
	TotalBidsLast float64
	TotalAsksLast float64
	TotalBidsPeak float64
	TotalAsksPeak float64
	BidNotional   float64
	AskNotional   float64
	BestBid       float64
	BestAsk       float64
	MidPrice      float64
	SpreadAbs     float64
	SpreadBps     float64
	BidAskRatio   float64
	Imbalance     float64
}

// Summarize computes the summary over a window of updates.
func Summarize(updates []model.OrderBookUpdate) Summary {
	nan := math.NaN()
	s := Summary{
		BestBid: nan, BestAsk: nan, MidPrice: nan,
		SpreadAbs: nan, SpreadBps: nan,
		BidAskRatio: nan, Imbalance: nan,
	}
	if len(updates) == 0 {
		return s
	}

	lastBids, lastAsks := LatestState(updates)
	peakBids, peakAsks := PeakState(updates)

	for p, q := range lastBids {
		s.TotalBidsLast += q
		s.BidNotional += p * q
	}
	for p, q := range lastAsks {
		s.TotalAsksLast += q
		s.AskNotional += p * q
	}
	for _, q := range peakBids {
		s.TotalBidsPeak += q
	}
	for _, q := range peakAsks {
		s.TotalAsksPeak += q
	}

	if len(lastBids) > 0 {
		s.BestBid = maxKey(lastBids)
	}
	if len(lastAsks) > 0 {
		s.BestAsk = minKey(lastAsks)
	}
	if !math.IsNaN(s.BestBid) && !math.IsNaN(s.BestAsk) && s.BestAsk > s.BestBid {
		s.MidPrice = (s.BestBid + s.BestAsk) / 2
		s.SpreadAbs = s.BestAsk - s.BestBid
		if s.MidPrice > 0 {
			s.SpreadBps = s.SpreadAbs / s.MidPrice * 10_000
		}
	}

	if s.TotalAsksLast > 0 {
		s.BidAskRatio = s.TotalBidsLast / s.TotalAsksLast
	}
	if denom := s.TotalBidsLast + s.TotalAsksLast; denom > 0 {
		s.Imbalance = (s.TotalBidsLast - s.TotalAsksLast) / denom
	}
	return s
}

// percentile uses the nearest-rank method; q in [0,100].
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}
	k := int(math.Ceil(q/100*float64(len(sorted)))) - 1
	if k < 0 {
		k = 0
	}
	if k > len(sorted)-1 {
		k = len(sorted) - 1
	}
	return sorted[k]
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maxKey(m map[float64]float64) float64 {
	first := true
	var best float64
	for k := range m {
		if first || k > best {
			best = k
			first = false
		}
	}
	return best
}

func minKey(m map[float64]float64) float64 {
	first := true
	var best float64
	for k := range m {
		if first || k < best {
			best = k
			first = false
		}
	}
	return best
}
