// Package ingest connects to the exchange's public WebSocket stream,
// subscribes to trade and order book topics, and normalizes raw messages
// into the internal event model.
//
// The client holds one connection for all configured symbols. Lost
// connections are retried with exponential backoff and re-subscribed;
// unparseable messages are counted and dropped rather than killing the
// stream.
package ingest
