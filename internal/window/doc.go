// Package window tracks candle boundaries and slices the trade buffer into
// closed intervals.
//
// The clock floors timestamps to interval multiples on epoch seconds, so all
// instances agree on boundaries regardless of when they started. A single
// trade arriving after a quiet gap can close several windows at once; each is
// emitted in order, empty ones included, because downstream consumers depend
// on a steady cadence.
package window
