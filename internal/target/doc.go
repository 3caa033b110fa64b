// Package target resolves forward-looking training labels for dataset rows.
//
// Each registered row waits once per configured horizon. A pair resolves at
// most once, and only after the wall clock has actually reached the row's
// base time plus the horizon; the price lookup is never asked about any
// earlier timestamp, so future data cannot leak into a row.
package target
