package candles

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marksim/candlefeed/model/market"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// trade timestamps below are microseconds, the source resolution.
func tr(tsUs int64, price, size float64) market.Trade {
	return market.Trade{Timestamp: tsUs, Price: d(price), Size: d(size)}
}

func TestAggregateEmpty(t *testing.T) {
	require.Empty(t, Aggregate(nil, 1_000))
	require.Empty(t, Aggregate([]market.Trade{}, 1_000))
}

func TestAggregateTwoBuckets(t *testing.T) {
	trades := []market.Trade{
		tr(0, 100, 1),
		tr(500_000, 101, 2),
		tr(1_500_000, 99, 1),
	}

	got := Aggregate(trades, 1_000)
	require.Len(t, got, 2)

	first := got[0]
	require.Equal(t, int64(0), first.BucketStart)
	require.Equal(t, "100", first.Open.String())
	require.Equal(t, "101", first.High.String())
	require.Equal(t, "100", first.Low.String())
	require.Equal(t, "101", first.Close.String())
	require.Equal(t, "3", first.Volume.String())

	second := got[1]
	require.Equal(t, int64(1_000), second.BucketStart)
	require.Equal(t, "99", second.Open.String())
	require.Equal(t, "99", second.High.String())
	require.Equal(t, "99", second.Low.String())
	require.Equal(t, "99", second.Close.String())
	require.Equal(t, "1", second.Volume.String())
}

func TestAggregateOrderIndependent(t *testing.T) {
	base := []market.Trade{
		tr(100_000, 100, 1),
		tr(300_000, 103, 2),
		tr(900_000, 97, 1),
		tr(1_100_000, 99, 4),
		tr(2_700_000, 101, 2),
		tr(2_900_000, 95, 3),
	}
	want := Aggregate(base, 1_000)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]market.Trade, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		require.Equal(t, want, Aggregate(shuffled, 1_000))
	}
}

func TestAggregateInvariants(t *testing.T) {
	const durationMs = 5_000

	rng := rand.New(rand.NewSource(42))
	trades := make([]market.Trade, 500)
	for i := range trades {
		trades[i] = tr(
			rng.Int63n(120_000_000), // two minutes of microseconds
			50_000+rng.Float64()*1_000,
			rng.Float64()*5,
		)
	}

	got := Aggregate(trades, durationMs)
	require.NotEmpty(t, got)

	// Volume conservation: sum sizes per bucket independently.
	wantVolume := make(map[int64]decimal.Decimal)
	for _, td := range trades {
		b := market.BucketStart(td.TimeMs(), durationMs)
		wantVolume[b] = wantVolume[b].Add(td.Size)
	}
	require.Len(t, got, len(wantVolume), "one candle per non-empty bucket")

	prev := int64(-1)
	for _, c := range got {
		require.Zero(t, c.BucketStart%durationMs, "bucket alignment")
		require.Greater(t, c.BucketStart, prev, "ascending, no duplicates")
		prev = c.BucketStart

		require.True(t, c.Low.LessThanOrEqual(c.Open), "low <= open")
		require.True(t, c.Low.LessThanOrEqual(c.Close), "low <= close")
		require.True(t, c.Open.LessThanOrEqual(c.High), "open <= high")
		require.True(t, c.Close.LessThanOrEqual(c.High), "close <= high")
		require.True(t, c.Low.LessThanOrEqual(c.High), "low <= high")

		require.True(t, c.Volume.Equal(wantVolume[c.BucketStart]),
			"volume for bucket %d: got %s want %s", c.BucketStart, c.Volume, wantVolume[c.BucketStart])
	}
}

func TestAggregateLeavesInputUntouched(t *testing.T) {
	trades := []market.Trade{
		tr(1_500_000, 99, 1),
		tr(0, 100, 1),
	}
	Aggregate(trades, 1_000)
	require.Equal(t, int64(1_500_000), trades[0].Timestamp)
	require.Equal(t, int64(0), trades[1].Timestamp)
}
