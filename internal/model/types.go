package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// -----------------------------------------------------------------------------
// Input Events
// -----------------------------------------------------------------------------

// TradeEvent is a single normalized trade from the upstream feed.
// Immutable once accepted into the trade buffer.
type TradeEvent struct {
	ID        string    // Exchange trade id; empty if the feed did not provide one
	Timestamp time.Time // Exchange timestamp (UTC)
	Symbol    string    // Instrument symbol (e.g., "BTCUSDT")
	Price     float64   // Trade price, > 0
	Size      float64   // Trade size, > 0
	Side      Side      // Taker side
	BestBid   float64   // Best bid at trade time, 0 if unknown
	BestAsk   float64   // Best ask at trade time, 0 if unknown
}

// DedupKey returns the identifier used for duplicate detection: the exchange
// trade id when present, otherwise a composite of the identifying fields.
// Two genuinely distinct trades that collide on the composite fallback are
// indistinguishable and collapse to one entry.
func (t TradeEvent) DedupKey() string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%d-%s-%v-%v-%s", t.Timestamp.UnixMilli(), t.Symbol, t.Price, t.Size, t.Side)
}

// PriceLevel is a single price point in an order book with its quantity.
type PriceLevel struct {
	Price float64
	Qty   float64 // 0 signals removal of the level
}

// OrderBookUpdate is one raw (possibly partial) book message from the feed.
type OrderBookUpdate struct {
	Timestamp time.Time
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// Event is the union delivered from ingestion to a processing pipeline.
// Exactly one field is non-nil.
type Event struct {
	Trade *TradeEvent
	Book  *OrderBookUpdate
}

// -----------------------------------------------------------------------------
// Aggregation Outputs
// -----------------------------------------------------------------------------

// WindowBoundary is a half-open candle interval [Start, End).
type WindowBoundary struct {
	Start time.Time
	End   time.Time
}

// ClosedWindow is an emitted window slice: all trades with
// Start <= ts < End, ordered by timestamp ascending. Trades may be empty;
// consumers depend on a steady window cadence, not on trade presence.
type ClosedWindow struct {
	Start  time.Time
	End    time.Time
	Trades []TradeEvent
}

// Empty reports whether the window contained no trades.
func (w ClosedWindow) Empty() bool { return len(w.Trades) == 0 }

// Candle is the OHLCV aggregate of one closed window.
type Candle struct {
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int
}

// BandDepth is the aggregated latest-state quantity within a percentage band
// around the midpoint.
type BandDepth struct {
	Bps    int     `json:"bps"`
	BidQty float64 `json:"bid_qty"`
	AskQty float64 `json:"ask_qty"`
}

// BookSnapshot carries the order-book summary attached to a feature row,
// computed over the updates observed during the window. Price-derived fields
// are NaN when one side was missing or the book was crossed at window end.
type BookSnapshot struct {
	BestBid     float64
	BestAsk     float64
	MidPrice    float64
	SpreadAbs   float64
	SpreadBps   float64
	BidQty      float64 // total latest-state bid quantity
	AskQty      float64 // total latest-state ask quantity
	BidAskRatio float64
	Imbalance   float64 // (bid-ask)/(bid+ask) over latest-state quantity
	Depth       []BandDepth
	BidWalls    int // outsized resting levels on the bid side
	AskWalls    int
	BidChurn    int // per-level quantity changes observed during the window
	AskChurn    int
}

// FeatureRow is one dataset row produced from a closed window. Forward-looking
// label fields are filled later by the target filler.
type FeatureRow struct {
	ID       uuid.UUID     // Row reference used by label resolutions
	Time     time.Time     // Window end; the base timestamp for horizons
	Symbol   string        // Instrument symbol
	Interval time.Duration // Window length
	Candle   Candle
	Book     BookSnapshot
	HasBook  bool // false when no book update existed at or before Time
}

// ResolvedLabel is a resolved (row, horizon) training target.
type ResolvedLabel struct {
	RowID           uuid.UUID
	HorizonSec      int
	FuturePrice     float64 // close at base time + horizon; 0 when Undetermined
	DeltaPct        float64 // (future-base)/base*100; meaningless when !HasDelta
	HasDelta        bool    // false when base price was zero/missing
	LongProfitable  bool    // DeltaPct > +friction at registration
	ShortProfitable bool    // DeltaPct < -friction at registration
	Undetermined    bool    // terminal state after the max-wait bound expired
	ResolvedAt      time.Time
}
