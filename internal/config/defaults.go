package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStreamURL          = "wss://stream.bybit.com/v5/public/linear"
	DefaultBookDepth          = 50
	DefaultQueueSize          = 4096
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 20 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultIntervalSeconds    = 30
	DefaultBufferCapacity     = 200_000
	DefaultRetentionSec       = 3600
	DefaultSideMode           = "exchange"
	DefaultCommissionBps      = 5.0
	DefaultSlippageBps        = 2.0
	DefaultWallMedianK        = 3.0
	DefaultWallPercentile     = 97
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultWriterBufferSize   = 10000
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults() {
	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.BookDepth == 0 {
		c.Stream.BookDepth = DefaultBookDepth
	}
	if c.Stream.QueueSize == 0 {
		c.Stream.QueueSize = DefaultQueueSize
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Aggregation defaults
	if c.Aggregation.IntervalSeconds == 0 {
		c.Aggregation.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.Aggregation.BufferCapacity == 0 {
		c.Aggregation.BufferCapacity = DefaultBufferCapacity
	}
	if c.Aggregation.RetentionSec == 0 {
		c.Aggregation.RetentionSec = DefaultRetentionSec
	}
	if c.Aggregation.SideMode == "" {
		c.Aggregation.SideMode = DefaultSideMode
	}

	// Targets defaults
	if len(c.Targets.HorizonsSec) == 0 {
		c.Targets.HorizonsSec = []int{30, 60, 300}
	}
	if c.Targets.CommissionBps == 0 {
		c.Targets.CommissionBps = DefaultCommissionBps
	}
	if c.Targets.SlippageBps == 0 {
		c.Targets.SlippageBps = DefaultSlippageBps
	}

	// Book defaults
	if len(c.Book.BandsBps) == 0 {
		c.Book.BandsBps = []int{10, 25, 50, 100}
	}
	if c.Book.WallMedianK == 0 {
		c.Book.WallMedianK = DefaultWallMedianK
	}
	if c.Book.WallPercentile == 0 {
		c.Book.WallPercentile = DefaultWallPercentile
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultWriterBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
