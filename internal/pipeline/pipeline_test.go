package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/target"
)

func testConfig() Config {
	return Config{
		Symbol:          "BTCUSDT",
		Interval:        30 * time.Second,
		BufferCapacity:  1000,
		Retention:       time.Hour,
		SideMode:        "exchange",
		Targets:         target.Config{HorizonsSec: []int{30}, CommissionBps: 5, SlippageBps: 2},
		Book:            BookConfig{BandsBps: []int{25, 100}, WallMedianK: 3, WallPercentile: 97},
		InputQueueSize:  64,
		OutputQueueSize: 64,
	}
}

func deliverTrade(t *testing.T, p *Pipeline, id string, ts time.Time, price, size float64) {
	t.Helper()
	tr := model.TradeEvent{
		ID: id, Timestamp: ts, Symbol: "BTCUSDT",
		Price: price, Size: size, Side: model.SideBuy,
	}
	if !p.Deliver(model.Event{Trade: &tr}) {
		t.Fatalf("Deliver(%s) returned false", id)
	}
}

func drainRows(p *Pipeline) []model.FeatureRow {
	var out []model.FeatureRow
	for {
		row, ok := p.Rows().Receive()
		if !ok {
			return out
		}
		out = append(out, row)
	}
}

func drainLabels(p *Pipeline) []model.ResolvedLabel {
	var out []model.ResolvedLabel
	for {
		l, ok := p.Labels().Receive()
		if !ok {
			return out
		}
		out = append(out, l)
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Symbol = ""
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("empty symbol should fail")
	}

	cfg = testConfig()
	cfg.Interval = 0
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("zero interval should fail")
	}

	cfg = testConfig()
	cfg.Targets.HorizonsSec = nil
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("empty horizons should fail")
	}

	cfg = testConfig()
	cfg.SideMode = "guess"
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("bad side mode should fail")
	}

	cfg = testConfig()
	cfg.Retention = time.Second
	if _, err := New(cfg, nil, nil); err == nil {
		t.Error("retention below interval should fail")
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	p, err := New(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// A book update before the first window end gets attached to its row.
	bu := model.OrderBookUpdate{
		Timestamp: base.Add(25 * time.Second),
		Bids:      []model.PriceLevel{{Price: 101.5, Qty: 3}},
		Asks:      []model.PriceLevel{{Price: 102.5, Qty: 2}},
	}
	p.Deliver(model.Event{Book: &bu})

	deliverTrade(t, p, "1", base.Add(5*time.Second), 100, 1)
	deliverTrade(t, p, "2", base.Add(20*time.Second), 102, 2)
	deliverTrade(t, p, "3", base.Add(40*time.Second), 105, 1)
	deliverTrade(t, p, "4", base.Add(75*time.Second), 106, 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rows := drainRows(p)
	labels := drainLabels(p)

	// Three rows: [10:00:00,30), [30,60), and the force-closed [60,90).
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	r0 := rows[0]
	if !r0.Time.Equal(base.Add(30 * time.Second)) {
		t.Errorf("row 0 time = %v, want 10:00:30", r0.Time)
	}
	c := r0.Candle
	if c.Open != 100 || c.High != 102 || c.Low != 100 || c.Close != 102 {
		t.Errorf("row 0 OHLC = %v/%v/%v/%v, want 100/102/100/102", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 3 || c.TradeCount != 2 {
		t.Errorf("row 0 volume/count = %v/%d, want 3/2", c.Volume, c.TradeCount)
	}
	if !r0.HasBook {
		t.Error("row 0 should carry the book snapshot from 10:00:25")
	} else {
		if r0.Book.MidPrice != 102 || r0.Book.SpreadAbs != 1 {
			t.Errorf("row 0 book = %+v", r0.Book)
		}
		if r0.Book.BidQty != 3 || r0.Book.AskQty != 2 {
			t.Errorf("row 0 book qty = %v/%v, want 3/2", r0.Book.BidQty, r0.Book.AskQty)
		}
		if len(r0.Book.Depth) != 2 {
			t.Errorf("row 0 depth bands = %d, want 2", len(r0.Book.Depth))
		}
	}

	if rows[1].Candle.Close != 105 || rows[2].Candle.Close != 106 {
		t.Errorf("row closes = %v/%v, want 105/106", rows[1].Candle.Close, rows[2].Candle.Close)
	}

	// Rows 0 and 1 resolved against later closes; row 2 stays pending.
	if len(labels) != 2 {
		t.Fatalf("got %d labels, want 2", len(labels))
	}
	l0 := labels[0]
	if l0.RowID != rows[0].ID || l0.FuturePrice != 105 {
		t.Errorf("label 0 = %+v, want row 0 resolved at 105", l0)
	}
	wantDpp := (105.0 - 102.0) / 102.0 * 100
	if math.Abs(l0.DeltaPct-wantDpp) > 1e-9 {
		t.Errorf("label 0 DeltaPct = %v, want %v", l0.DeltaPct, wantDpp)
	}
	if !l0.LongProfitable || l0.ShortProfitable {
		t.Errorf("label 0 profitability = long %v / short %v", l0.LongProfitable, l0.ShortProfitable)
	}
	if labels[1].RowID != rows[1].ID || labels[1].FuturePrice != 106 {
		t.Errorf("label 1 = %+v, want row 1 resolved at 106", labels[1])
	}

	if got := p.filler.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1 (the force-closed row)", got)
	}
}

func TestPipeline_DuplicateDelivery(t *testing.T) {
	p, err := New(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deliverTrade(t, p, "dup", base.Add(5*time.Second), 100, 1)
	deliverTrade(t, p, "dup", base.Add(5*time.Second), 100, 1)
	deliverTrade(t, p, "close", base.Add(35*time.Second), 101, 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Stop(stopCtx)

	rows := drainRows(p)
	if len(rows) < 1 {
		t.Fatal("no rows emitted")
	}
	first := rows[0].Candle
	if first.TradeCount != 1 || first.Volume != 1 {
		t.Errorf("first candle count/volume = %d/%v, want 1/1 (duplicate dropped)", first.TradeCount, first.Volume)
	}
}

func TestPipeline_StopTimeoutWithWedgedRun(t *testing.T) {
	cfg := testConfig()
	cfg.OutputQueueSize = 1
	p, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// With no consumer, row 1 fills the output queue and the send for row 2
	// blocks the processing goroutine.
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deliverTrade(t, p, "1", base.Add(5*time.Second), 100, 1)
	deliverTrade(t, p, "2", base.Add(40*time.Second), 101, 1)
	deliverTrade(t, p, "3", base.Add(75*time.Second), 102, 1)
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop(stopCtx) }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after its stop-timeout expired")
	}

	// The timed-out stop must not force-close: only the row that fit in the
	// queue before the wedge comes out.
	rows := drainRows(p)
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
	if p.Deliver(model.Event{}) {
		t.Error("Deliver after Stop returned true")
	}
}

func TestPipeline_StopWithFullOutputQueue(t *testing.T) {
	cfg := testConfig()
	cfg.OutputQueueSize = 1
	p, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Row 1 fills the queue but nothing blocks: the processing goroutine can
	// exit cleanly, and the force-closed window's row has nowhere to go.
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deliverTrade(t, p, "1", base.Add(5*time.Second), 100, 1)
	deliverTrade(t, p, "2", base.Add(40*time.Second), 101, 1)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop(stopCtx) }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on the full output queue")
	}

	// The final row was dropped, not waited for.
	rows := drainRows(p)
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	p, err := New(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Start(context.Background())

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deliverTrade(t, p, "1", base.Add(5*time.Second), 100, 1)

	ctx := context.Background()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	// Exactly one force-closed window row despite two Stop calls.
	rows := drainRows(p)
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
	if p.Deliver(model.Event{}) {
		t.Error("Deliver after Stop returned true")
	}
}
