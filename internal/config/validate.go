package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// Invalid aggregation or target settings are programmer errors and must fail
// here rather than surface as runtime faults later.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Stream.Symbols) == 0 {
		return errors.New("stream.symbols must list at least one symbol")
	}
	if c.Stream.QueueSize < 1 {
		return errors.New("stream.queue_size must be >= 1")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Aggregation.IntervalSeconds < 1 {
		return fmt.Errorf("aggregation.interval_seconds must be >= 1, got %d", c.Aggregation.IntervalSeconds)
	}
	if c.Aggregation.BufferCapacity < 1 {
		return errors.New("aggregation.buffer_capacity must be >= 1")
	}
	if c.Aggregation.RetentionSec < c.Aggregation.IntervalSeconds {
		return errors.New("aggregation.retention_sec must cover at least one interval")
	}
	switch c.Aggregation.SideMode {
	case "exchange", "mid", "tick":
	default:
		return fmt.Errorf("aggregation.side_mode must be one of exchange, mid, tick; got %q", c.Aggregation.SideMode)
	}

	if len(c.Targets.HorizonsSec) == 0 {
		return errors.New("targets.horizons_sec must list at least one horizon")
	}
	for _, h := range c.Targets.HorizonsSec {
		if h < 1 {
			return fmt.Errorf("targets.horizons_sec entries must be >= 1, got %d", h)
		}
	}
	if c.Targets.CommissionBps < 0 || c.Targets.SlippageBps < 0 {
		return errors.New("targets commission/slippage bps must be >= 0")
	}
	if c.Targets.MaxWaitSec < 0 {
		return errors.New("targets.max_wait_sec must be >= 0")
	}

	if c.Book.WallPercentile < 0 || c.Book.WallPercentile > 100 {
		return fmt.Errorf("book.wall_percentile must be between 0 and 100, got %d", c.Book.WallPercentile)
	}
	for _, b := range c.Book.BandsBps {
		if b < 1 {
			return fmt.Errorf("book.bands_bps entries must be >= 1, got %d", b)
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
