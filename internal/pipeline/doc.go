// Package pipeline drives the per-instrument aggregation core.
//
// Each tracked (symbol, interval) pair owns its own trade buffer, window
// clock, book store and target filler; nothing is shared across instruments.
// A single goroutine consumes normalized events from a bounded queue and
// applies them in arrival order, so the core itself needs no locking. Feature
// rows and resolved labels leave through bounded output buffers consumed by
// the writers.
package pipeline
