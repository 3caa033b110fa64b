package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/candle-data/internal/config"
	"github.com/rickgao/candle-data/internal/database"
	"github.com/rickgao/candle-data/internal/ingest"
	"github.com/rickgao/candle-data/internal/metrics"
	"github.com/rickgao/candle-data/internal/model"
	"github.com/rickgao/candle-data/internal/pipeline"
	"github.com/rickgao/candle-data/internal/target"
	"github.com/rickgao/candle-data/internal/version"
	"github.com/rickgao/candle-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aggregator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"symbols", cfg.Stream.Symbols,
		"interval_seconds", cfg.Aggregation.IntervalSeconds,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pools, err := database.NewPools(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pools.Close()

	logger.Info("database connected")

	mets := metrics.New()

	// One pipeline and one pair of writers per symbol
	pipes := make(map[string]*pipeline.Pipeline, len(cfg.Stream.Symbols))
	var writers []stoppable

	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}

	for _, sym := range cfg.Stream.Symbols {
		p, err := pipeline.New(pipeline.Config{
			Symbol:         sym,
			Interval:       time.Duration(cfg.Aggregation.IntervalSeconds) * time.Second,
			BufferCapacity: cfg.Aggregation.BufferCapacity,
			Retention:      time.Duration(cfg.Aggregation.RetentionSec) * time.Second,
			SideMode:       cfg.Aggregation.SideMode,
			Targets: target.Config{
				HorizonsSec:   cfg.Targets.HorizonsSec,
				CommissionBps: cfg.Targets.CommissionBps,
				SlippageBps:   cfg.Targets.SlippageBps,
				MaxWait:       time.Duration(cfg.Targets.MaxWaitSec) * time.Second,
			},
			Book: pipeline.BookConfig{
				BandsBps:       cfg.Book.BandsBps,
				WallMedianK:    cfg.Book.WallMedianK,
				WallPercentile: cfg.Book.WallPercentile,
			},
			InputQueueSize:  cfg.Stream.QueueSize,
			OutputQueueSize: cfg.Writers.BufferSize,
		}, mets, logger)
		if err != nil {
			logger.Error("failed to build pipeline", "symbol", sym, "error", err)
			os.Exit(1)
		}
		pipes[sym] = p

		cw := writer.NewCandleWriter(writerCfg, p.Rows(), pools.Timescale, logger.With("symbol", sym))
		lw := writer.NewLabelWriter(writerCfg, p.Labels(), pools.Timescale, logger.With("symbol", sym))
		writers = append(writers, cw, lw)

		if err := cw.Start(ctx); err != nil {
			logger.Error("failed to start candle writer", "symbol", sym, "error", err)
			os.Exit(1)
		}
		if err := lw.Start(ctx); err != nil {
			logger.Error("failed to start label writer", "symbol", sym, "error", err)
			os.Exit(1)
		}
		if err := p.Start(ctx); err != nil {
			logger.Error("failed to start pipeline", "symbol", sym, "error", err)
			os.Exit(1)
		}
	}

	// Stream client feeding the pipelines
	client, err := ingest.NewClient(ingest.ClientConfig{
		URL:               cfg.Stream.URL,
		Symbols:           cfg.Stream.Symbols,
		BookDepth:         cfg.Stream.BookDepth,
		PingInterval:      cfg.Stream.PingInterval,
		ReadTimeout:       cfg.Stream.ReadTimeout,
		WriteTimeout:      5 * time.Second,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
	}, func(symbol string, ev model.Event) {
		if p, ok := pipes[symbol]; ok {
			p.Deliver(ev)
		}
	}, mets, logger)
	if err != nil {
		logger.Error("failed to build stream client", "error", err)
		os.Exit(1)
	}

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start stream client", "error", err)
		os.Exit(1)
	}

	// Metrics and health server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Metrics.Port, cfg.Metrics.Path,
			healthHandler(pools, client, pipes), logger)
	})

	logger.Info("aggregator running",
		"instance_id", cfg.Instance.ID,
		"metrics_port", cfg.Metrics.Port,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Order matters: stop the stream first, then flush the pipelines (which
	// force-close their in-progress windows), then let the writers drain.
	client.Stop(shutdownCtx)
	for _, p := range pipes {
		p.Stop(shutdownCtx)
	}
	for _, w := range writers {
		w.Stop(shutdownCtx)
	}

	if err := g.Wait(); err != nil {
		logger.Error("metrics server error", "error", err)
	}

	logger.Info("aggregator stopped")
}

type stoppable interface {
	Stop(ctx context.Context) error
}

// healthHandler reports database, stream, and pipeline health.
func healthHandler(pools *database.Pools, client *ingest.Client, pipes map[string]*pipeline.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if err := pools.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		if client.IsConnected() {
			health.Components["stream"] = "connected"
		} else {
			health.Components["stream"] = "reconnecting"
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		for sym, p := range pipes {
			health.Components["pipeline_"+sym] = p.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
