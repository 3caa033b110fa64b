package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/queue"
)

// candleRow is the flattened database shape of one feature row. Book fields
// are nil when no order book update preceded the window close.
type candleRow struct {
	ID          uuid.UUID
	Time        time.Time
	Symbol      string
	IntervalSec int
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	TradeCount  int
	BestBid     *float64
	BestAsk     *float64
	MidPrice    *float64
	SpreadAbs   *float64
	SpreadBps   *float64
	BidQty      *float64
	AskQty      *float64
	Imbalance   *float64
	BidWalls    *int
	AskWalls    *int
	BidChurn    *int
	AskChurn    *int
	Depth       []byte // JSON depth bands, nil without a snapshot
}

// CandleWriter consumes feature rows from a pipeline output buffer and
// batch-inserts them into the candles table.
type CandleWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *queue.BoundedBuffer[model.FeatureRow]
	db    *pgxpool.Pool

	batch       []candleRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewCandleWriter creates a new CandleWriter.
func NewCandleWriter(
	cfg WriterConfig,
	input *queue.BoundedBuffer[model.FeatureRow],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *CandleWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]candleRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming rows and writing to the database.
func (w *CandleWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("candle writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains outstanding work and performs a final flush.
func (w *CandleWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping candle writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("candle writer stopped")
	case <-ctx.Done():
		w.logger.Warn("candle writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *CandleWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer into batches. TryReceive with a short
// wait keeps the loop responsive to shutdown.
func (w *CandleWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainRemaining()
			return
		default:
			row, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					w.drainRemaining()
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleRow(row)
		}
	}
}

// drainRemaining pulls whatever is still buffered so the final flush covers
// rows emitted during shutdown (the force-closed window in particular).
func (w *CandleWriter) drainRemaining() {
	for {
		row, ok := w.input.TryReceive()
		if !ok {
			return
		}
		w.handleRow(row)
	}
}

func (w *CandleWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *CandleWriter) handleRow(row model.FeatureRow) {
	r := w.transform(row)

	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a FeatureRow to its database shape.
func (w *CandleWriter) transform(row model.FeatureRow) candleRow {
	r := candleRow{
		ID:          row.ID,
		Time:        row.Time,
		Symbol:      row.Symbol,
		IntervalSec: int(row.Interval.Seconds()),
		Open:        row.Candle.Open,
		High:        row.Candle.High,
		Low:         row.Candle.Low,
		Close:       row.Candle.Close,
		Volume:      row.Candle.Volume,
		TradeCount:  row.Candle.TradeCount,
	}
	if row.HasBook {
		r.BestBid = &row.Book.BestBid
		r.BestAsk = &row.Book.BestAsk
		r.MidPrice = &row.Book.MidPrice
		r.SpreadAbs = &row.Book.SpreadAbs
		r.SpreadBps = &row.Book.SpreadBps
		r.BidQty = &row.Book.BidQty
		r.AskQty = &row.Book.AskQty
		r.Imbalance = &row.Book.Imbalance
		r.BidWalls = &row.Book.BidWalls
		r.AskWalls = &row.Book.AskWalls
		r.BidChurn = &row.Book.BidChurn
		r.AskChurn = &row.Book.AskChurn
		if len(row.Book.Depth) > 0 {
			if depth, err := json.Marshal(row.Book.Depth); err == nil {
				r.Depth = depth
			}
		}
	}
	return r
}

// flush writes the current batch to the database.
func (w *CandleWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]candleRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed candles",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *CandleWriter) batchInsert(rows []candleRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO candles (id, time, symbol, interval_sec,
				open, high, low, close, volume, trade_count,
				best_bid, best_ask, mid_price, spread_abs, spread_bps,
				bid_qty, ask_qty, imbalance,
				bid_walls, ask_walls, bid_churn, ask_churn, depth_bands)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
			ON CONFLICT (time, symbol, interval_sec) DO NOTHING
		`, r.ID, r.Time, r.Symbol, r.IntervalSec,
			r.Open, r.High, r.Low, r.Close, r.Volume, r.TradeCount,
			r.BestBid, r.BestAsk, r.MidPrice, r.SpreadAbs, r.SpreadBps,
			r.BidQty, r.AskQty, r.Imbalance,
			r.BidWalls, r.AskWalls, r.BidChurn, r.AskChurn, r.Depth)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
