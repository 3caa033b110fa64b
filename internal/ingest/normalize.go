package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/candle-data/internal/model"
)

// wsMessage is the envelope every data message arrives in.
type wsMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

// wireTrade is one executed trade as published on a publicTrade topic.
type wireTrade struct {
	Time   int64  `json:"T"` // Trade time, epoch milliseconds
	Symbol string `json:"s"`
	Side   string `json:"S"` // "Buy" or "Sell"
	Qty    string `json:"v"`
	Price  string `json:"p"`
	ID     string `json:"i"`
}

// wireBook is the payload of an orderbook topic message. Levels are
// [price, qty] string pairs; qty "0" deletes the level.
type wireBook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

// Normalize converts one raw stream message into zero or more events.
// Control replies (subscribe acks, pongs) yield no events and no error.
func Normalize(data []byte) (symbol string, events []model.Event, err error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if msg.Topic == "" {
		// Control traffic, not market data.
		return "", nil, nil
	}

	switch {
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		return normalizeTrades(msg)
	case strings.HasPrefix(msg.Topic, "orderbook."):
		return normalizeBook(msg)
	default:
		return "", nil, fmt.Errorf("unknown topic %q", msg.Topic)
	}
}

func normalizeTrades(msg wsMessage) (string, []model.Event, error) {
	var wires []wireTrade
	if err := json.Unmarshal(msg.Data, &wires); err != nil {
		return "", nil, fmt.Errorf("unmarshal trades: %w", err)
	}

	var symbol string
	events := make([]model.Event, 0, len(wires))
	for _, w := range wires {
		tr, err := normalizeTrade(w)
		if err != nil {
			return "", nil, err
		}
		symbol = tr.Symbol
		events = append(events, model.Event{Trade: &tr})
	}
	return symbol, events, nil
}

func normalizeTrade(w wireTrade) (model.TradeEvent, error) {
	if w.Time <= 0 {
		return model.TradeEvent{}, fmt.Errorf("trade %s: missing timestamp", w.ID)
	}
	if w.Symbol == "" {
		return model.TradeEvent{}, fmt.Errorf("trade %s: missing symbol", w.ID)
	}
	price, err := strconv.ParseFloat(w.Price, 64)
	if err != nil || price <= 0 {
		return model.TradeEvent{}, fmt.Errorf("trade %s: bad price %q", w.ID, w.Price)
	}
	qty, err := strconv.ParseFloat(w.Qty, 64)
	if err != nil || qty <= 0 {
		return model.TradeEvent{}, fmt.Errorf("trade %s: bad qty %q", w.ID, w.Qty)
	}

	var side model.Side
	switch w.Side {
	case "Buy":
		side = model.SideBuy
	case "Sell":
		side = model.SideSell
	default:
		return model.TradeEvent{}, fmt.Errorf("trade %s: bad side %q", w.ID, w.Side)
	}

	ts := time.UnixMilli(w.Time).UTC()
	id := w.ID
	if id == "" {
		// Some venues omit trade IDs; fall back to a composite so the
		// dedup layer still has a stable key.
		id = fmt.Sprintf("%d-%s-%s-%s", w.Time, w.Price, w.Qty, w.Side)
	}

	return model.TradeEvent{
		ID:        id,
		Timestamp: ts,
		Symbol:    w.Symbol,
		Price:     price,
		Size:      qty,
		Side:      side,
	}, nil
}

func normalizeBook(msg wsMessage) (string, []model.Event, error) {
	var w wireBook
	if err := json.Unmarshal(msg.Data, &w); err != nil {
		return "", nil, fmt.Errorf("unmarshal book: %w", err)
	}
	if w.Symbol == "" {
		return "", nil, fmt.Errorf("book update: missing symbol")
	}
	if msg.TS <= 0 {
		return "", nil, fmt.Errorf("book update %s: missing timestamp", w.Symbol)
	}

	bids, err := parseLevels(w.Bids)
	if err != nil {
		return "", nil, fmt.Errorf("book update %s bids: %w", w.Symbol, err)
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return "", nil, fmt.Errorf("book update %s asks: %w", w.Symbol, err)
	}

	bu := model.OrderBookUpdate{
		Timestamp: time.UnixMilli(msg.TS).UTC(),
		Bids:      bids,
		Asks:      asks,
	}
	return w.Symbol, []model.Event{{Book: &bu}}, nil
}

func parseLevels(raw [][]string) ([]model.PriceLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]model.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("level %v: want [price, qty]", pair)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("bad price %q", pair[0])
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("bad qty %q", pair[1])
		}
		levels = append(levels, model.PriceLevel{Price: price, Qty: qty})
	}
	return levels, nil
}
