package window

import "github.com/rickgao/candle-data/internal/model"

// BuildCandle derives the OHLCV aggregate of a closed window. Returns false
// for an empty window. Trades are assumed ordered by timestamp, which is what
// the aggregator produces.
func BuildCandle(w model.ClosedWindow) (model.Candle, bool) {
	if len(w.Trades) == 0 {
		return model.Candle{}, false
	}

	first := w.Trades[0]
	c := model.Candle{
		Open:       first.Price,
		High:       first.Price,
		Low:        first.Price,
		Close:      first.Price,
		TradeCount: len(w.Trades),
	}
	for _, tr := range w.Trades {
		if tr.Price > c.High {
			c.High = tr.Price
		}
		if tr.Price < c.Low {
			c.Low = tr.Price
		}
		c.Close = tr.Price
		c.Volume += tr.Size
	}
	return c, true
}
