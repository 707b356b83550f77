// Package candles turns trades into OHLCV bars: a pure batch transform
// and a stateful per-timeframe store for continuous display.
package candles

import (
	"cmp"
	"slices"

	"github.com/marksim/candlefeed/model/market"
)

// Aggregate buckets an unordered set of trades into closed candles of
// the given width, ordered by ascending bucket start. Empty buckets
// produce no candle; gap-filling is a display concern.
//
// The sort is stable so that trades with equal timestamps keep their
// arrival order, which is what open/close tie-breaking depends on.
// Pure: the input slice is not modified.
func Aggregate(trades []market.Trade, durationMs int64) []market.Candle {
	if len(trades) == 0 {
		return nil
	}

	sorted := make([]market.Trade, len(trades))
	copy(sorted, trades)
	slices.SortStableFunc(sorted, func(a, b market.Trade) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	var out []market.Candle
	var cur *market.Candle

	for _, t := range sorted {
		bucket := market.BucketStart(t.TimeMs(), durationMs)
		if cur == nil || bucket != cur.BucketStart {
			if cur != nil {
				out = append(out, *cur)
			}
			c := market.NewCandle(bucket, t)
			cur = &c
			continue
		}
		cur.Apply(t)
	}

	return append(out, *cur)
}
