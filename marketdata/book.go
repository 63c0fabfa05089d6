package marketdata

import (
	"sort"
	"time"

	"github.com/govalues/decimal"
)

// Side distinguishes bid from ask for a BookSide.
type Side int

const (
	Bid Side = iota
	Ask
)

// PriceLevel is one resting order-book entry.
type PriceLevel struct {
	Price      decimal.Decimal
	Volume     uint64
	LastUpdate time.Time
	OriginType string
}

// BookSide holds one side of the order book, keyed by price string so
// decimal values compare by exact textual representation rather than by
// Go equality on differently-scaled decimal.Decimal values. This assumes
// the vendor formats prices for one instrument consistently.
type BookSide struct {
	side   Side
	levels map[string]PriceLevel
	maxLen int
}

func newBookSide(side Side, maxLen int) *BookSide {
	return &BookSide{side: side, levels: make(map[string]PriceLevel), maxLen: maxLen}
}

// applyUpdate implements C4.apply_update: volume 0 removes the level,
// otherwise the level is set (overwriting any prior entry), and the side
// is re-capped afterward.
func (b *BookSide) applyUpdate(price decimal.Decimal, volume uint64, ts time.Time, originType string) {
	key := price.String()
	if volume == 0 {
		delete(b.levels, key)
		return
	}
	b.levels[key] = PriceLevel{Price: price, Volume: volume, LastUpdate: ts, OriginType: originType}
	b.capTo(b.maxLen)
}

// sorted returns levels in side-natural order: bids descending, asks
// ascending by price.
func (b *BookSide) sorted() []PriceLevel {
	out := make([]PriceLevel, 0, len(b.levels))
	for _, lvl := range b.levels {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		c := out[i].Price.Cmp(out[j].Price)
		if b.side == Bid {
			return c > 0
		}
		return c < 0
	})
	return out
}

// top returns up to n levels in side-natural order.
func (b *BookSide) top(n int) []PriceLevel {
	s := b.sorted()
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// best returns the top-of-book level, if any.
func (b *BookSide) best() (PriceLevel, bool) {
	s := b.top(1)
	if len(s) == 0 {
		return PriceLevel{}, false
	}
	return s[0], true
}

// depthInRange sums volume and counts levels with price in [lower, upper].
func (b *BookSide) depthInRange(lower, upper decimal.Decimal) (uint64, int) {
	var vol uint64
	var count int
	for _, lvl := range b.levels {
		if lvl.Price.Cmp(lower) >= 0 && lvl.Price.Cmp(upper) <= 0 {
			vol += lvl.Volume
			count++
		}
	}
	return vol, count
}

// capTo evicts the worst levels (farthest from top of book) so that at
// most maxLevels entries remain.
func (b *BookSide) capTo(maxLevels int) {
	if maxLevels <= 0 || len(b.levels) <= maxLevels {
		return
	}
	s := b.sorted()
	for _, lvl := range s[maxLevels:] {
		delete(b.levels, lvl.Price.String())
	}
}

// len reports the number of resting levels.
func (b *BookSide) len() int {
	return len(b.levels)
}
