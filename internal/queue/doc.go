// Package queue provides the bounded blocking buffer that connects ingestion
// to processing and processing to the writers.
//
// Unlike a plain channel, the buffer exposes occupancy statistics and a
// non-blocking receive for batch consumers. Sends block when the buffer is
// full: backpressure suspends the producer instead of dropping messages.
package queue
