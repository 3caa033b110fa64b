// Package writer implements batch writers for the aggregation outputs.
//
// Writers:
//   - Candle writer: feature rows into the candles table (TimescaleDB)
//   - Label writer: resolved target labels into the labels table (TimescaleDB)
//
// All writers use append-only semantics (never update, only insert) with
// ON CONFLICT DO NOTHING, so replays and restarts are safe.
package writer
