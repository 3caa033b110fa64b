// streamtest connects to the public WebSocket stream and prints normalized
// events to the console.
// Usage: go run ./cmd/streamtest --symbols BTCUSDT,ETHUSDT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/candle-data/internal/config"
	"github.com/rickgao/candle-data/internal/ingest"
	"github.com/rickgao/candle-data/internal/model"
)

func main() {
	url := flag.String("url", config.DefaultStreamURL, "stream URL")
	symbols := flag.String("symbols", "BTCUSDT", "comma-separated symbols")
	depth := flag.Int("depth", config.DefaultBookDepth, "order book depth")
	quiet := flag.Bool("quiet", false, "print counters only, not every event")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	var trades, books atomic.Int64

	handler := func(symbol string, ev model.Event) {
		switch {
		case ev.Trade != nil:
			trades.Add(1)
			if !*quiet {
				t := ev.Trade
				fmt.Printf("%s trade  %-10s %-4s price=%.4f size=%.6f id=%s\n",
					t.Timestamp.Format(time.RFC3339Nano), symbol, t.Side, t.Price, t.Size, t.ID)
			}
		case ev.Book != nil:
			books.Add(1)
			if !*quiet {
				b := ev.Book
				fmt.Printf("%s book   %-10s bids=%d asks=%d\n",
					b.Timestamp.Format(time.RFC3339Nano), symbol, len(b.Bids), len(b.Asks))
			}
		}
	}

	cfg := ingest.DefaultClientConfig()
	cfg.URL = *url
	cfg.Symbols = strings.Split(*symbols, ",")
	cfg.BookDepth = *depth

	client, err := ingest.NewClient(cfg, handler, nil, logger)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			client.Stop(stopCtx)
			stopCancel()
			logger.Info("done", "trades", trades.Load(), "books", books.Load())
			return
		case <-ticker.C:
			logger.Info("stream stats",
				"connected", client.IsConnected(),
				"trades", trades.Load(),
				"books", books.Load(),
			)
		}
	}
}
