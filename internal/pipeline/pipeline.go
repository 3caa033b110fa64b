package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/candle-data/internal/book"
	"github.com/rickgao/candle-data/internal/metrics"
	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/queue"
	"github.com/rickgao/candle-data/internal/side"
	"github.com/rickgao/candle-data/internal/target"
	"github.com/rickgao/candle-data/internal/tradebuf"
	"github.com/rickgao/candle-data/internal/window"
)

// Config holds settings for one instrument pipeline.
type Config struct {
	Symbol          string
	Interval        time.Duration
	BufferCapacity  int
	Retention       time.Duration
	SideMode        string
	Targets         target.Config
	Book            BookConfig
	InputQueueSize  int
	OutputQueueSize int
}

// BookConfig tunes the per-window order-book analytics.
type BookConfig struct {
	BandsBps       []int   // depth bands around the midpoint
	WallMedianK    float64 // wall threshold: k * median level quantity
	WallPercentile int     // wall threshold floor: percentile of level quantity
}

// Pipeline is the aggregation core for one (symbol, interval) pair.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	mets   *metrics.Metrics

	input  *queue.BoundedBuffer[model.Event]
	rows   *queue.BoundedBuffer[model.FeatureRow]
	labels *queue.BoundedBuffer[model.ResolvedLabel]

	// Core state, owned by the processing goroutine.
	trades    *tradebuf.Buffer
	agg       *window.Aggregator
	books     *book.Store
	filler    *target.Filler
	infer     side.Inferrer
	prevTrade model.TradeEvent
	closes    map[int64]float64 // window-end epoch seconds -> close price

	wg       sync.WaitGroup
	stopOnce sync.Once

	// draining is set by Stop after the processing goroutine has exited;
	// output sends stop blocking from then on.
	draining bool
}

// New builds a pipeline. Invalid configuration fails here, not at runtime.
func New(cfg Config, mets *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("pipeline needs a symbol")
	}
	if cfg.Retention < cfg.Interval {
		return nil, fmt.Errorf("retention %v must cover at least one interval %v", cfg.Retention, cfg.Interval)
	}
	if cfg.InputQueueSize < 1 || cfg.OutputQueueSize < 1 {
		return nil, fmt.Errorf("queue sizes must be >= 1")
	}

	trades, err := tradebuf.New(cfg.BufferCapacity)
	if err != nil {
		return nil, err
	}
	agg, err := window.NewAggregator(trades, cfg.Symbol, cfg.Interval)
	if err != nil {
		return nil, err
	}
	filler, err := target.NewFiller(cfg.Targets)
	if err != nil {
		return nil, err
	}
	infer, err := side.ForMode(cfg.SideMode)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:    cfg,
		logger: logger.With("symbol", cfg.Symbol, "interval", cfg.Interval),
		mets:   mets,
		input:  queue.NewBoundedBuffer[model.Event](cfg.InputQueueSize),
		rows:   queue.NewBoundedBuffer[model.FeatureRow](cfg.OutputQueueSize),
		labels: queue.NewBoundedBuffer[model.ResolvedLabel](cfg.OutputQueueSize),
		trades: trades,
		agg:    agg,
		books:  book.NewStore(),
		filler: filler,
		infer:  infer,
		closes: make(map[int64]float64),
	}, nil
}

// Deliver hands a normalized event to the pipeline. Blocks while the input
// queue is full (backpressure) and returns false once the pipeline stopped.
func (p *Pipeline) Deliver(ev model.Event) bool {
	return p.input.Send(ev)
}

// Rows returns the output buffer of feature rows.
func (p *Pipeline) Rows() *queue.BoundedBuffer[model.FeatureRow] { return p.rows }

// Labels returns the output buffer of resolved labels.
func (p *Pipeline) Labels() *queue.BoundedBuffer[model.ResolvedLabel] { return p.labels }

// Stats reports queue occupancy. Core aggregation state is owned by the
// processing goroutine and is deliberately not exposed here.
type Stats struct {
	Symbol string            `json:"symbol"`
	Input  queue.BufferStats `json:"input"`
	Rows   queue.BufferStats `json:"rows"`
	Labels queue.BufferStats `json:"labels"`
}

// Stats returns a snapshot of the pipeline's queues.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Symbol: p.cfg.Symbol,
		Input:  p.input.Stats(),
		Rows:   p.rows.Stats(),
		Labels: p.labels.Stats(),
	}
}

// Start begins consuming events.
func (p *Pipeline) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.runLoop()

	p.logger.Info("pipeline started",
		"buffer_capacity", p.cfg.BufferCapacity,
		"horizons", p.filler.Horizons(),
		"side_mode", p.cfg.SideMode,
	)
	return nil
}

// Stop drains the input queue, force-closes the in-progress window so the
// last partial candle is not lost, and closes the output buffers. Safe to
// call more than once. If the processing goroutine does not exit before ctx
// expires the force-close is skipped: touching the core state while the
// goroutine may still run would race, and the final window is lost rather
// than wedging shutdown.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping pipeline")
		p.input.Close()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		clean := false
		select {
		case <-done:
			clean = true
		case <-ctx.Done():
			p.logger.Error("pipeline stop timed out, skipping final window close")
		}

		if clean {
			// The processing goroutine has exited; state is ours now.
			// Draining sends must not block: nothing is required to be
			// consuming the output buffers anymore.
			p.draining = true
			if p.agg.Clock().Started() {
				w := p.agg.ForceCloseCurrent()
				p.logger.Info("force-closed final window",
					"start", w.Start, "end", w.End, "trades", len(w.Trades))
				p.emitWindow(w)
			}
		}

		p.rows.Close()
		p.labels.Close()

		if clean {
			p.logger.Info("pipeline stopped", "pending_labels", p.filler.PendingCount())
		} else {
			p.logger.Info("pipeline stopped")
		}
	})
	return nil
}

// runLoop applies events in arrival order until the input closes.
func (p *Pipeline) runLoop() {
	defer p.wg.Done()
	for {
		ev, ok := p.input.Receive()
		if !ok {
			return
		}
		p.handle(ev)
	}
}

func (p *Pipeline) handle(ev model.Event) {
	switch {
	case ev.Trade != nil:
		p.handleTrade(*ev.Trade)
	case ev.Book != nil:
		p.books.AddUpdate(*ev.Book)
	}
}

func (p *Pipeline) handleTrade(tr model.TradeEvent) {
	tr.Side = p.infer(p.prevTrade, tr)
	p.prevTrade = tr

	before := p.trades.Stats()
	p.trades.Append(tr)
	after := p.trades.Stats()

	if after.Duplicates > before.Duplicates {
		p.mets.IncTradesDeduplicated(p.cfg.Symbol)
		return
	}
	p.mets.IncTradesIngested(p.cfg.Symbol)
	p.mets.AddTradesEvicted(p.cfg.Symbol, int(after.Evictions-before.Evictions))

	for _, w := range p.agg.OnTrade(tr.Timestamp) {
		p.emitWindow(w)
	}
}

// emitWindow turns one closed window into a feature row (when it held
// trades), registers the row for target filling, and runs a filler tick at
// the window end. Empty windows still tick the filler: cadence, not trade
// presence, drives label resolution.
func (p *Pipeline) emitWindow(w model.ClosedWindow) {
	p.mets.IncWindowsClosed(p.cfg.Symbol)
	if w.Empty() {
		p.mets.IncEmptyWindows(p.cfg.Symbol)
	}

	if candle, ok := window.BuildCandle(w); ok {
		p.closes[w.End.Unix()] = candle.Close

		row := model.FeatureRow{
			ID:       uuid.New(),
			Time:     w.End,
			Symbol:   p.cfg.Symbol,
			Interval: p.cfg.Interval,
			Candle:   candle,
		}
		row.Book, row.HasBook = p.snapshotBook(w)

		p.filler.RegisterRow(row.ID, row.Time, candle.Close)
		p.sendRow(row)
		p.mets.IncRowsBuilt(p.cfg.Symbol)

		p.logger.Debug("window closed",
			"start", w.Start, "end", w.End,
			"trades", len(w.Trades), "close", candle.Close)
	}

	resolved := p.filler.OnTick(w.End, p.lookupClose)
	var undetermined int
	for _, l := range resolved {
		if l.Undetermined {
			undetermined++
		}
		p.sendLabel(l)
	}
	p.mets.AddLabelsResolved(p.cfg.Symbol, len(resolved)-undetermined)
	p.mets.AddLabelsUndetermined(p.cfg.Symbol, undetermined)
	p.mets.SetLabelsPending(p.cfg.Symbol, p.filler.PendingCount())

	p.maintain(w.End)
}

// sendRow blocks for backpressure during normal operation and falls back to
// a non-blocking send while draining, when no consumer is guaranteed.
func (p *Pipeline) sendRow(row model.FeatureRow) {
	if !p.draining {
		p.rows.Send(row)
		return
	}
	if !p.rows.TrySend(row) {
		p.logger.Warn("output queue full, dropping final row", "time", row.Time)
	}
}

func (p *Pipeline) sendLabel(l model.ResolvedLabel) {
	if !p.draining {
		p.labels.Send(l)
		return
	}
	if !p.labels.TrySend(l) {
		p.logger.Warn("output queue full, dropping final label", "row_id", l.RowID)
	}
}

// maintain prunes state older than the retention horizon.
func (p *Pipeline) maintain(now time.Time) {
	cutoff := now.Add(-p.cfg.Retention)
	p.trades.PurgeOlderThan(cutoff)
	p.books.PurgeOlderThan(cutoff)
	for sec := range p.closes {
		if sec < cutoff.Unix() {
			delete(p.closes, sec)
		}
	}
}

// lookupClose serves the filler from the in-memory close index. Absence is a
// valid answer: the label stays pending and is retried on the next tick.
func (p *Pipeline) lookupClose(ts time.Time) (float64, bool) {
	v, ok := p.closes[ts.Unix()]
	return v, ok
}

// snapshotBook condenses the book updates observed during the window into
// the row's snapshot. A quiet window falls back to the last update at or
// before the window end so state carries across windows.
func (p *Pipeline) snapshotBook(w model.ClosedWindow) (model.BookSnapshot, bool) {
	updates := p.books.Range(w.Start, w.End)
	if len(updates) == 0 {
		last, found := p.books.LastAtOrBefore(w.End)
		if !found {
			return model.BookSnapshot{}, false
		}
		updates = []model.OrderBookUpdate{last}
	}

	s := book.Summarize(updates)
	snap := model.BookSnapshot{
		BestBid:     s.BestBid,
		BestAsk:     s.BestAsk,
		MidPrice:    s.MidPrice,
		SpreadAbs:   s.SpreadAbs,
		SpreadBps:   s.SpreadBps,
		BidQty:      s.TotalBidsLast,
		AskQty:      s.TotalAsksLast,
		BidAskRatio: s.BidAskRatio,
		Imbalance:   s.Imbalance,
	}

	lastBids, lastAsks := book.LatestState(updates)
	for _, b := range book.DepthBands(lastBids, lastAsks, p.cfg.Book.BandsBps) {
		snap.Depth = append(snap.Depth, model.BandDepth{
			Bps: b.Bps, BidQty: b.BidQty, AskQty: b.AskQty,
		})
	}
	snap.BidWalls = len(book.DetectWalls(lastBids, p.cfg.Book.WallMedianK, p.cfg.Book.WallPercentile))
	snap.AskWalls = len(book.DetectWalls(lastAsks, p.cfg.Book.WallMedianK, p.cfg.Book.WallPercentile))

	churn := book.Churn(updates)
	snap.BidChurn = churn.BidLevelsChanged
	snap.AskChurn = churn.AskLevelsChanged
	return snap, true
}
