package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/candle-data/internal/metrics"
)

// Client maintains a single WebSocket connection to the public stream and
// feeds normalized events to a Handler. It reconnects with exponential
// backoff and re-subscribes after every reconnect.
type Client struct {
	cfg     ClientConfig
	handler Handler
	logger  *slog.Logger
	mets    *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex
}

// NewClient creates a stream client. The handler must be non-nil.
func NewClient(cfg ClientConfig, handler Handler, mets *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		return nil, fmt.Errorf("ingest: nil handler")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("ingest: empty stream URL")
	}
	if len(cfg.Symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if cfg.PingInterval <= 0 || cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return nil, fmt.Errorf("ingest: timeouts must be positive")
	}
	if cfg.ReconnectBaseWait <= 0 || cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		return nil, fmt.Errorf("ingest: bad reconnect waits %v/%v", cfg.ReconnectBaseWait, cfg.ReconnectMaxWait)
	}

	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		mets:    mets,
	}, nil
}

// Start connects and begins streaming. The initial connection is attempted
// synchronously so configuration errors surface at startup.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}

	c.wg.Add(1)
	go c.runLoop()

	c.logger.Info("stream client started",
		"url", c.cfg.URL,
		"symbols", c.cfg.Symbols,
	)
	return nil
}

// Stop closes the connection and waits for the stream goroutines to exit.
func (c *Client) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("stream client stop timed out")
	}

	c.logger.Info("stream client stopped")
	return nil
}

// IsConnected reports whether the stream connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// connect dials, subscribes, and starts the ping loop for one connection.
func (c *Client) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(c.ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.closeConn()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.wg.Add(1)
	go c.pingLoop(conn)

	c.logger.Debug("stream connected", "url", c.cfg.URL)
	return nil
}

// subscribe requests trade and order book topics for every symbol.
func (c *Client) subscribe() error {
	args := make([]string, 0, 2*len(c.cfg.Symbols))
	for _, sym := range c.cfg.Symbols {
		args = append(args,
			fmt.Sprintf("publicTrade.%s", sym),
			fmt.Sprintf("orderbook.%d.%s", c.cfg.BookDepth, sym),
		)
	}
	return c.send(command{Op: "subscribe", Args: args})
}

func (c *Client) send(cmd command) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// runLoop reads messages until the context is canceled, reconnecting with
// exponential backoff after every connection failure.
func (c *Client) runLoop() {
	defer c.wg.Done()

	for {
		err := c.readUntilError()
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn("stream connection lost", "error", err)
		c.closeConn()

		if !c.reconnect() {
			return
		}
	}
}

// readUntilError consumes messages from the current connection until it
// fails. Parse errors are counted and skipped; only transport errors return.
func (c *Client) readUntilError() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		if handleControl(data, c.logger) {
			continue
		}

		symbol, events, err := Normalize(data)
		if err != nil {
			c.mets.IncParseErrors()
			c.logger.Debug("dropping unparseable message", "error", err)
			continue
		}
		for _, ev := range events {
			c.handler(symbol, ev)
		}
	}
}

// handleControl reports whether data is a control reply (subscribe ack or
// pong). Failed subscribes are logged; the stream itself keeps running.
func handleControl(data []byte, logger *slog.Logger) bool {
	var reply controlReply
	if err := json.Unmarshal(data, &reply); err != nil || reply.Op == "" {
		return false
	}
	switch reply.Op {
	case "subscribe":
		if !reply.Success {
			logger.Error("subscribe rejected", "reason", reply.RetMsg)
		}
		return true
	case "ping", "pong":
		return true
	}
	return false
}

// pingLoop keeps the connection alive with application-level pings.
func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				// A reconnect replaced this connection.
				return
			}
			if err := c.send(command{Op: "ping"}); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// reconnect retries the connection with exponential backoff until it
// succeeds or the context is canceled. Returns false on cancellation.
func (c *Client) reconnect() bool {
	wait := c.cfg.ReconnectBaseWait

	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(wait):
		}

		c.mets.IncStreamReconnects()
		c.logger.Info("attempting reconnection", "wait", wait)

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnection failed", "error", err)
			wait *= 2
			if wait > c.cfg.ReconnectMaxWait {
				wait = c.cfg.ReconnectMaxWait
			}
			continue
		}

		c.logger.Info("reconnected")
		return true
	}
}

// closeConn tears down the current connection if one exists.
func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
}
