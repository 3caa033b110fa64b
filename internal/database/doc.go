// Package database provides connection pool management for TimescaleDB.
//
// Each aggregator instance writes two hypertables:
//   - candles: per-window feature rows
//   - labels: deferred target labels keyed by (row_id, horizon_sec)
package database
