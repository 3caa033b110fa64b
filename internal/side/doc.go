// Package side infers the taker side of a trade when the feed's own side
// field cannot be trusted or is absent.
//
// Three strategies share one signature and are selected by configuration:
// the exchange-provided field, comparison against the quote midpoint, and
// the tick rule against the previous trade price.
package side
