// Package book implements the time-indexed order-book snapshot store and the
// read-only analytics computed over a window of raw updates.
//
// The store is an append-only log of the raw messages as they arrived; reads
// never mutate it. "State" over a stream of partial updates is defined by the
// analytics here: the latest state keeps the last non-zero quantity per price
// level (zero removes the level), while the peak state keeps the maximum
// quantity ever observed (removals do not clear peaks).
package book
