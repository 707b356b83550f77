// Package tradelog retains the most recent raw trades from a rolling
// feed. The batch progress protocol repeats the last-known trades
// across successive frames, so inserts deduplicate by timestamp.
package tradelog

import (
	"sync"

	"github.com/marksim/candlefeed/model/market"
)

// DefaultCapacity matches the progress-log window kept by the upstream
// consumers.
const DefaultCapacity = 50

// Log is a fixed-capacity, insertion-ordered buffer of recent trades.
// When full, the oldest entry is evicted first.
type Log struct {
	mu     sync.Mutex
	cap    int
	trades []market.Trade
	seen   map[int64]struct{}
}

// New creates a Log with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		cap:    capacity,
		trades: make([]market.Trade, 0, capacity),
		seen:   make(map[int64]struct{}, capacity),
	}
}

// Insert appends a trade unless one with the same timestamp is already
// buffered. Reports whether the trade was accepted.
func (l *Log) Insert(t market.Trade) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[t.Timestamp]; dup {
		return false
	}

	if len(l.trades) == l.cap {
		delete(l.seen, l.trades[0].Timestamp)
		copy(l.trades, l.trades[1:])
		l.trades = l.trades[:len(l.trades)-1]
	}

	l.trades = append(l.trades, t)
	l.seen[t.Timestamp] = struct{}{}
	return true
}

// InsertAll inserts each trade in order and returns the accepted ones.
func (l *Log) InsertAll(trades []market.Trade) []market.Trade {
	var accepted []market.Trade
	for _, t := range trades {
		if l.Insert(t) {
			accepted = append(accepted, t)
		}
	}
	return accepted
}

// Trades returns a copy of the buffered trades, oldest first.
func (l *Log) Trades() []market.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]market.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Len reports the number of buffered trades.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades)
}

// Reset empties the buffer.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = l.trades[:0]
	l.seen = make(map[int64]struct{}, l.cap)
}
