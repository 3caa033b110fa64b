package side

import (
	"fmt"

	"github.com/rickgao/candle-data/internal/model"
)

// Inferrer decides the taker side of cur. prev is the preceding trade on the
// same instrument, zero-valued for the first trade seen.
type Inferrer func(prev, cur model.TradeEvent) model.Side

// Mode names accepted by ForMode.
const (
	ModeExchange = "exchange"
	ModeMid      = "mid"
	ModeTick     = "tick"
)

// ForMode returns the strategy selected by configuration.
func ForMode(mode string) (Inferrer, error) {
	switch mode {
	case ModeExchange:
		return Exchange, nil
	case ModeMid:
		return MidPrice, nil
	case ModeTick:
		return TickRule, nil
	default:
		return nil, fmt.Errorf("unknown side mode %q", mode)
	}
}

// Exchange trusts the feed's side field, falling back to the tick rule when
// the field is absent.
func Exchange(prev, cur model.TradeEvent) model.Side {
	if cur.Side == model.SideBuy || cur.Side == model.SideSell {
		return cur.Side
	}
	return TickRule(prev, cur)
}

// MidPrice marks a trade at or above the quote midpoint as a buy. Without
// both quotes it falls back to the tick rule.
func MidPrice(prev, cur model.TradeEvent) model.Side {
	if cur.BestBid <= 0 || cur.BestAsk <= 0 {
		return TickRule(prev, cur)
	}
	mid := (cur.BestBid + cur.BestAsk) / 2
	if cur.Price >= mid {
		return model.SideBuy
	}
	return model.SideSell
}

// TickRule marks an uptick as a buy and anything else as a sell.
func TickRule(prev, cur model.TradeEvent) model.Side {
	if cur.Price > prev.Price {
		return model.SideBuy
	}
	return model.SideSell
}

// Apply runs the inferrer over an ordered trade sequence and returns the
// inferred side per trade.
func Apply(trades []model.TradeEvent, infer Inferrer) []model.Side {
	out := make([]model.Side, len(trades))
	var prev model.TradeEvent
	for i, tr := range trades {
		out[i] = infer(prev, tr)
		prev = tr
	}
	return out
}
