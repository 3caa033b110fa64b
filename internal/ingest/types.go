package ingest

import (
	"errors"
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrNoSymbols    = errors.New("no symbols to subscribe")
)

// Handler receives one normalized event for a symbol. Implementations may
// block; the read loop tolerates backpressure from downstream queues.
type Handler func(symbol string, ev model.Event)

// ClientConfig configures the stream client.
type ClientConfig struct {
	URL               string        // WebSocket URL (e.g. wss://stream.bybit.com/v5/public/linear)
	Symbols           []string      // Instruments to subscribe
	BookDepth         int           // Order book levels to request
	PingInterval      time.Duration // How often to send application-level pings
	ReadTimeout       time.Duration // Max silence before the connection is considered dead
	WriteTimeout      time.Duration // Write deadline for sends
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BookDepth:         50,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// command is a control message sent to the server.
type command struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// controlReply is the server's answer to subscribe and ping operations.
type controlReply struct {
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
	Op      string `json:"op"`
}
