package candles

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/marksim/candlefeed/model/market"
)

// HistoryCap is the maximum number of closed candles retained per
// timeline. Oldest entries are evicted first.
const HistoryCap = 200

// timeline holds one timeframe's bounded closed history plus at most
// one live candle. History bucket starts are strictly increasing, and
// the live candle's bucket is always beyond the last closed one.
type timeline struct {
	history []market.Candle
	live    *market.Candle
}

func (tl *timeline) lastClosed() (int64, bool) {
	if len(tl.history) == 0 {
		return 0, false
	}
	return tl.history[len(tl.history)-1].BucketStart, true
}

// archive appends a closed candle, enforcing the strictly-increasing
// invariant and the history cap. Re-archiving an already-present bucket
// is a no-op, which makes duplicate delivery of a closed bar harmless.
func (tl *timeline) archive(c market.Candle) {
	if last, ok := tl.lastClosed(); ok && c.BucketStart <= last {
		return
	}
	tl.history = append(tl.history, c)
	if len(tl.history) > HistoryCap {
		tl.history = tl.history[len(tl.history)-HistoryCap:]
	}
}

// Store keeps one candle timeline per active timeframe, fed either by
// pre-aggregated bars already tagged closed/live upstream, or by raw
// trades bucketed with the same rules as Aggregate.
//
// A Store belongs to one session; timelines are created lazily when a
// timeframe is first touched.
type Store struct {
	mu        sync.Mutex
	timelines map[string]*timeline
}

func NewStore() *Store {
	return &Store{timelines: make(map[string]*timeline)}
}

func (s *Store) get(timeframe string) *timeline {
	tl, ok := s.timelines[timeframe]
	if !ok {
		tl = &timeline{}
		s.timelines[timeframe] = tl
	}
	return tl
}

// ApplyBar merges one pre-aggregated bar. A closed bar displaces any
// live candle at or before its bucket and joins the history; a live bar
// replaces the current live candle. Bars at or behind the last closed
// bucket are dropped, so duplicate delivery is a silent no-op.
func (s *Store) ApplyBar(timeframe string, c market.Candle, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl := s.get(timeframe)
	if last, ok := tl.lastClosed(); ok && c.BucketStart <= last {
		return
	}

	if closed {
		if tl.live != nil && tl.live.BucketStart <= c.BucketStart {
			tl.live = nil
		}
		tl.archive(c)
		return
	}

	cc := c
	tl.live = &cc
}

// ApplyTrade folds one raw trade into the timeframe's live candle,
// archiving the previous live candle when the trade opens a new bucket.
// Trades older than the live bucket are dropped: folding them back in
// would mutate closed history.
func (s *Store) ApplyTrade(timeframe string, t market.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl := s.get(timeframe)
	bucket := market.BucketStart(t.TimeMs(), market.DurationMs(timeframe))

	if tl.live == nil {
		if last, ok := tl.lastClosed(); ok && bucket <= last {
			log.Debug().Str("timeframe", timeframe).Int64("bucket", bucket).Msg("candles: dropping stale trade")
			return
		}
		c := market.NewCandle(bucket, t)
		tl.live = &c
		return
	}

	switch {
	case bucket == tl.live.BucketStart:
		tl.live.Apply(t)
	case bucket > tl.live.BucketStart:
		tl.archive(*tl.live)
		c := market.NewCandle(bucket, t)
		tl.live = &c
	default:
		log.Debug().Str("timeframe", timeframe).Int64("bucket", bucket).Msg("candles: dropping stale trade")
	}
}

// Backfill rebuilds a timeline from a batch of raw trades. The last
// aggregated bucket stays live, since later trades may still extend it.
func (s *Store) Backfill(timeframe string, trades []market.Trade) {
	bars := Aggregate(trades, market.DurationMs(timeframe))

	s.mu.Lock()
	defer s.mu.Unlock()

	tl := &timeline{}
	s.timelines[timeframe] = tl
	if len(bars) == 0 {
		return
	}
	for _, c := range bars[:len(bars)-1] {
		tl.archive(c)
	}
	live := bars[len(bars)-1]
	tl.live = &live
}

// View returns the timeframe's closed history followed by the live
// candle, if any. The slice is a copy, safe for rendering while the
// store keeps updating.
func (s *Store) View(timeframe string) []market.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl, ok := s.timelines[timeframe]
	if !ok {
		return nil
	}
	out := make([]market.Candle, len(tl.history), len(tl.history)+1)
	copy(out, tl.history)
	if tl.live != nil {
		out = append(out, *tl.live)
	}
	return out
}

// Reset discards every timeline. Used when a new run begins.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines = make(map[string]*timeline)
}
