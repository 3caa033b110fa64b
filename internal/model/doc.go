// Package model defines shared data types used across the candle aggregation
// pipeline.
//
// Conventions:
//   - Timestamps: time.Time, always UTC
//   - Prices and sizes: float64 in instrument units
//   - Row IDs: uuid.UUID, assigned when a feature row is built
package model
