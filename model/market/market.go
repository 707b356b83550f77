// Package market holds the wire-independent market data types shared by
// every layer: trades, OHLCV candles and top-of-book statistics.
package market

import "github.com/shopspring/decimal"

// MicrosPerMilli converts trade timestamps (microseconds, the source
// resolution of the batch protocols) to milliseconds.
const MicrosPerMilli = 1000

// Trade is a single executed trade. Immutable once constructed.
//
// Timestamp is in the source resolution, microseconds. Use TimeMs for
// anything that buckets by wall-clock milliseconds.
type Trade struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
}

// TimeMs returns the trade time in milliseconds (floor division).
// Negative timestamps are out of scope.
func (t Trade) TimeMs() int64 {
	return t.Timestamp / MicrosPerMilli
}

// Candle is one OHLCV aggregate over a fixed time bucket.
// BucketStart is in milliseconds and is always a multiple of the owning
// timeframe's duration.
type Candle struct {
	BucketStart int64           `json:"bucket_start"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
}

// NewCandle seeds a candle from the first trade of a bucket.
func NewCandle(bucketStart int64, t Trade) Candle {
	return Candle{
		BucketStart: bucketStart,
		Open:        t.Price,
		High:        t.Price,
		Low:         t.Price,
		Close:       t.Price,
		Volume:      t.Size,
	}
}

// Apply folds one more trade of the same bucket into the candle.
// High only increases, low only decreases, close is overwritten and
// volume accumulates; open is fixed at bucket creation.
func (c *Candle) Apply(t Trade) {
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume = c.Volume.Add(t.Size)
}

// Stats is the latest top-of-book summary carried by market_data frames.
type Stats struct {
	Timestamp  int64           `json:"timestamp"`
	LastPrice  decimal.Decimal `json:"last_price"`
	BidPrice   decimal.Decimal `json:"bid_price"`
	AskPrice   decimal.Decimal `json:"ask_price"`
	Volume24h  decimal.Decimal `json:"volume_24h"`
	TradeCount int             `json:"trade_count"`
}

// Spread is ask minus bid. Meaningful only when both sides are quoted.
func (s Stats) Spread() decimal.Decimal {
	return s.AskPrice.Sub(s.BidPrice)
}
