package market

import "strconv"

// Millisecond multipliers per timeframe unit suffix.
const (
	msPerSecond = 1_000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// DurationMs converts a timeframe label ("1s", "5m", "1h", "1d") to its
// bucket width in milliseconds.
//
// An unrecognized unit falls back to the seconds multiplier rather than
// failing ("2x" → 2000). The upstream feed behaves the same way, so the
// ambiguity is kept as-is. A label with no parseable magnitude yields 0.
func DurationMs(label string) int64 {
	if len(label) < 2 {
		return 0
	}

	unit := label[len(label)-1]
	n, err := strconv.ParseInt(label[:len(label)-1], 10, 64)
	if err != nil {
		return 0
	}

	switch unit {
	case 'm':
		return n * msPerMinute
	case 'h':
		return n * msPerHour
	case 'd':
		return n * msPerDay
	default: // 's' and anything unknown
		return n * msPerSecond
	}
}

// BucketStart aligns a millisecond timestamp down to the start of its
// bucket. Integer floor division; negative timestamps are out of scope.
func BucketStart(timestampMs, durationMs int64) int64 {
	if durationMs <= 0 {
		return timestampMs
	}
	return timestampMs / durationMs * durationMs
}
