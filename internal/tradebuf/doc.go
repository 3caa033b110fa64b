// Package tradebuf implements the deduplicating trade buffer.
//
// Raw trades from the feed land here exactly once: duplicates (by exchange id
// or composite fallback key) are silently ignored, and when the fixed-capacity
// ring fills up the oldest entry and its dedup index entry are evicted
// together. Range queries are non-destructive and ordered by timestamp.
package tradebuf
