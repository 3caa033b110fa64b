package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/queue"
)

// labelRow is the database shape of one resolved label. FuturePrice and the
// outcome fields are nil for undetermined labels; DeltaPct is additionally
// nil when the base price was zero.
type labelRow struct {
	RowID           uuid.UUID
	HorizonSec      int
	FuturePrice     *float64
	DeltaPct        *float64
	LongProfitable  *bool
	ShortProfitable *bool
	Undetermined    bool
	ResolvedAt      time.Time
}

// LabelWriter consumes resolved labels from a pipeline output buffer and
// batch-inserts them into the labels table.
type LabelWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *queue.BoundedBuffer[model.ResolvedLabel]
	db    *pgxpool.Pool

	batch       []labelRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewLabelWriter creates a new LabelWriter.
func NewLabelWriter(
	cfg WriterConfig,
	input *queue.BoundedBuffer[model.ResolvedLabel],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *LabelWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]labelRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming labels and writing to the database.
func (w *LabelWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("label writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains outstanding work and performs a final flush.
func (w *LabelWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping label writer")

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
		w.logger.Info("label writer stopped")
	case <-ctx.Done():
		w.logger.Warn("label writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *LabelWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *LabelWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainRemaining()
			return
		default:
			l, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					w.drainRemaining()
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleLabel(l)
		}
	}
}

func (w *LabelWriter) drainRemaining() {
	for {
		l, ok := w.input.TryReceive()
		if !ok {
			return
		}
		w.handleLabel(l)
	}
}

func (w *LabelWriter) flushLoop() {
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

func (w *LabelWriter) handleLabel(l model.ResolvedLabel) {
	r := w.transform(l)

	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a ResolvedLabel to its database shape.
func (w *LabelWriter) transform(l model.ResolvedLabel) labelRow {
	r := labelRow{
		RowID:        l.RowID,
		HorizonSec:   l.HorizonSec,
		Undetermined: l.Undetermined,
		ResolvedAt:   l.ResolvedAt,
	}
	if l.Undetermined {
		return r
	}

	fp := l.FuturePrice
	r.FuturePrice = &fp
	if l.HasDelta {
		dp := l.DeltaPct
		long := l.LongProfitable
		short := l.ShortProfitable
		r.DeltaPct = &dp
		r.LongProfitable = &long
		r.ShortProfitable = &short
	}
	return r
}

// flush writes the current batch to the database.
func (w *LabelWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]labelRow, 0, w.cfg.BatchSize)
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

	w.logger.Debug("flushed labels",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *LabelWriter) batchInsert(rows []labelRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO labels (row_id, horizon_sec, future_price, delta_pct,
				long_profitable, short_profitable, undetermined, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (row_id, horizon_sec) DO NOTHING
		`, r.RowID, r.HorizonSec, r.FuturePrice, r.DeltaPct,
			r.LongProfitable, r.ShortProfitable, r.Undetermined, r.ResolvedAt)
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
