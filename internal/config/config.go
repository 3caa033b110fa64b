package config

import "time"

// Config is the root configuration for an aggregator instance.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Stream      StreamConfig      `yaml:"stream"`
	Database    DatabaseConfig    `yaml:"database"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Targets     TargetsConfig     `yaml:"targets"`
	Book        BookConfig        `yaml:"book"`
	Writers     WritersConfig     `yaml:"writers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// InstanceConfig identifies this aggregator.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds upstream WebSocket feed settings.
type StreamConfig struct {
	URL                string        `yaml:"url"`
	Symbols            []string      `yaml:"symbols"`
	BookDepth          int           `yaml:"book_depth"`
	QueueSize          int           `yaml:"queue_size"` // bounded; producer blocks when full
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
}

// DatabaseConfig holds the TimescaleDB connection for candle rows and labels.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// AggregationConfig holds window clock and trade buffer settings.
type AggregationConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	BufferCapacity  int    `yaml:"buffer_capacity"`  // trade buffer ring size
	RetentionSec    int    `yaml:"retention_sec"`    // purge horizon for buffers/stores
	SideMode        string `yaml:"side_mode"`        // "exchange", "mid" or "tick"
}

// TargetsConfig holds target filler settings.
type TargetsConfig struct {
	HorizonsSec   []int   `yaml:"horizons_sec"`
	CommissionBps float64 `yaml:"commission_bps"`
	SlippageBps   float64 `yaml:"slippage_bps"`
	// MaxWaitSec bounds how long a (row, horizon) pair may stay pending past
	// its target time before it resolves as undetermined. 0 disables the bound.
	MaxWaitSec int `yaml:"max_wait_sec"`
}

// BookConfig holds order-book analytics settings.
type BookConfig struct {
	BandsBps       []int   `yaml:"bands_bps"`
	WallMedianK    float64 `yaml:"wall_median_k"`
	WallPercentile int     `yaml:"wall_percentile"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
