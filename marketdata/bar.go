package marketdata

import (
	"time"

	"github.com/govalues/decimal"
)

// Bar is one OHLCV candle. Every field is frozen once a later bucket
// starts, except on the still-open bar at the tail of a BarSeries.
type Bar struct {
	BucketStart time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      uint64
}

// BarSeries is the capped, ordered bar history for a single Timeframe.
// It holds no lock of its own — callers (the Engine) serialize access via
// barsMu, matching the single-owner locking pattern used throughout.
type BarSeries struct {
	tf       Timeframe
	maxBars  int
	enforceMinVolume bool
	bars     []Bar
}

// newBarSeries constructs an empty series for tf, capped at maxBars.
func newBarSeries(tf Timeframe, maxBars int, enforceMinVolume bool) *BarSeries {
	return &BarSeries{tf: tf, maxBars: maxBars, enforceMinVolume: enforceMinVolume}
}

// appendOrUpdate implements C2.append_or_update: it opens a new bar when
// the bucket has advanced, mutates the open bar in place when the bucket
// is unchanged, and discards late ticks whose bucket has already passed.
// Returns the bar as it stands after the call and whether a new bar was
// opened (the caller uses this to decide whether to emit new_bar).
func (s *BarSeries) appendOrUpdate(bucket time.Time, price decimal.Decimal, volume uint64) (Bar, bool) {
	if len(s.bars) == 0 || bucket.After(s.bars[len(s.bars)-1].BucketStart) {
		vol := volume
		if s.enforceMinVolume {
			vol = maxU64(vol, 1)
		}
		s.bars = append(s.bars, Bar{
			BucketStart: bucket,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      vol,
		})
		s.evict()
		return s.bars[len(s.bars)-1], true
	}

	last := &s.bars[len(s.bars)-1]
	if bucket.Equal(last.BucketStart) {
		if price.Cmp(last.High) > 0 {
			last.High = price
		}
		if price.Cmp(last.Low) < 0 {
			last.Low = price
		}
		last.Close = price
		newVolume := last.Volume + volume
		if s.enforceMinVolume {
			newVolume = maxU64(newVolume, 1)
		}
		last.Volume = newVolume
		return *last, false
	}

	// bucket < last.BucketStart: late tick, discard per §9.
	return *last, false
}

// evict drops the oldest bars until at most maxBars remain.
func (s *BarSeries) evict() {
	if s.maxBars <= 0 {
		return
	}
	if over := len(s.bars) - s.maxBars; over > 0 {
		s.bars = s.bars[over:]
	}
}

// tail returns a snapshot copy of the last n bars, or all of them when n
// is <= 0 or exceeds the series length.
func (s *BarSeries) tail(n int) []Bar {
	if n <= 0 || n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]Bar, n)
	copy(out, s.bars[len(s.bars)-n:])
	return out
}

// len returns the number of bars currently held.
func (s *BarSeries) len() int {
	return len(s.bars)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
