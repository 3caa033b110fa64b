// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Trades ingested, deduplicated and evicted per symbol
//   - Windows closed (empty windows tracked separately)
//   - Label resolutions: resolved, undetermined, currently pending
//   - Stream reconnects and parse errors
package metrics
