package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the aggregator.
// A nil *Metrics is a valid no-op receiver, so components can run unmetered
// in tests.
type Metrics struct {
	TradesIngested     *prometheus.CounterVec
	TradesDeduplicated *prometheus.CounterVec
	TradesEvicted      *prometheus.CounterVec
	WindowsClosed      *prometheus.CounterVec
	EmptyWindows       *prometheus.CounterVec
	RowsBuilt          *prometheus.CounterVec
	LabelsResolved     *prometheus.CounterVec
	LabelsUndetermined *prometheus.CounterVec
	LabelsPending      *prometheus.GaugeVec
	StreamReconnects   prometheus.Counter
	ParseErrors        prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	symbol := []string{"symbol"}
	return &Metrics{
		TradesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_trades_ingested_total",
			Help: "Trades accepted into the trade buffer",
		}, symbol),
		TradesDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_trades_deduplicated_total",
			Help: "Duplicate trades silently dropped by the buffer",
		}, symbol),
		TradesEvicted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_trades_evicted_total",
			Help: "Oldest trades evicted at buffer capacity (expected steady state)",
		}, symbol),
		WindowsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_windows_closed_total",
			Help: "Closed candle windows emitted",
		}, symbol),
		EmptyWindows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_windows_empty_total",
			Help: "Closed windows that held no trades",
		}, symbol),
		RowsBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_rows_built_total",
			Help: "Feature rows built from closed windows",
		}, symbol),
		LabelsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_labels_resolved_total",
			Help: "Target labels resolved with a future price",
		}, symbol),
		LabelsUndetermined: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_labels_undetermined_total",
			Help: "Target labels closed as undetermined after the max wait",
		}, symbol),
		LabelsPending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggregator_labels_pending",
			Help: "Currently waiting (row, horizon) pairs",
		}, symbol),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_stream_reconnects_total",
			Help: "WebSocket reconnect attempts",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_stream_parse_errors_total",
			Help: "Messages dropped because they could not be parsed",
		}),
	}
}

func addVec(v *prometheus.CounterVec, symbol string, n int) {
	if n != 0 {
		v.WithLabelValues(symbol).Add(float64(n))
	}
}

func (m *Metrics) IncTradesIngested(symbol string) {
	if m != nil {
		addVec(m.TradesIngested, symbol, 1)
	}
}

func (m *Metrics) IncTradesDeduplicated(symbol string) {
	if m != nil {
		addVec(m.TradesDeduplicated, symbol, 1)
	}
}

func (m *Metrics) AddTradesEvicted(symbol string, n int) {
	if m != nil {
		addVec(m.TradesEvicted, symbol, n)
	}
}

func (m *Metrics) IncWindowsClosed(symbol string) {
	if m != nil {
		addVec(m.WindowsClosed, symbol, 1)
	}
}

func (m *Metrics) IncEmptyWindows(symbol string) {
	if m != nil {
		addVec(m.EmptyWindows, symbol, 1)
	}
}

func (m *Metrics) IncRowsBuilt(symbol string) {
	if m != nil {
		addVec(m.RowsBuilt, symbol, 1)
	}
}

func (m *Metrics) AddLabelsResolved(symbol string, n int) {
	if m != nil {
		addVec(m.LabelsResolved, symbol, n)
	}
}

func (m *Metrics) AddLabelsUndetermined(symbol string, n int) {
	if m != nil {
		addVec(m.LabelsUndetermined, symbol, n)
	}
}

func (m *Metrics) SetLabelsPending(symbol string, n int) {
	if m == nil {
		return
	}
	m.LabelsPending.WithLabelValues(symbol).Set(float64(n))
}

func (m *Metrics) IncStreamReconnects() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

func (m *Metrics) IncParseErrors() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// Serve exposes the metrics endpoint until ctx is canceled. When health is
// non-nil it is mounted at /health on the same server.
func Serve(ctx context.Context, port int, path string, health http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	if health != nil {
		mux.Handle("/health", health)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "port", port, "path", path)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
