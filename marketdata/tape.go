package marketdata

import (
	"math"
	"time"

	"github.com/govalues/decimal"
)

// TradeSide is the inferred aggressor side of a trade.
type TradeSide int

const (
	SideUnknown TradeSide = iota
	SideBuy
	SideSell
)

// Trade is one executed print, with its aggressor side inferred at
// insert time from the top-of-book prevailing at that instant.
type Trade struct {
	Price  decimal.Decimal
	Volume uint64
	Ts     time.Time
	Side   TradeSide
}

// TradeTape is the capped, append-only FIFO of recent trades.
type TradeTape struct {
	maxLen int
	trades []Trade
}

func newTradeTape(maxLen int) *TradeTape {
	return &TradeTape{maxLen: maxLen}
}

// inferSide applies the classical trade-direction rule: price at or
// above best ask is a buy, at or below best bid is a sell, otherwise (or
// with no top-of-book at all) UNKNOWN rather than guessing.
func inferSide(price, bestBid, bestAsk decimal.Decimal, haveBid, haveAsk bool) TradeSide {
	if haveAsk && price.Cmp(bestAsk) >= 0 {
		return SideBuy
	}
	if haveBid && price.Cmp(bestBid) <= 0 {
		return SideSell
	}
	return SideUnknown
}

// append implements C5.append: infer side from the given top-of-book,
// add the trade, and evict the oldest entry on overflow.
func (t *TradeTape) append(price decimal.Decimal, volume uint64, ts time.Time, bestBid, bestAsk decimal.Decimal, haveBid, haveAsk bool) Trade {
	tr := Trade{Price: price, Volume: volume, Ts: ts, Side: inferSide(price, bestBid, bestAsk, haveBid, haveAsk)}
	t.trades = append(t.trades, tr)
	if t.maxLen > 0 && len(t.trades) > t.maxLen {
		t.trades = t.trades[len(t.trades)-t.maxLen:]
	}
	return tr
}

// recent returns a snapshot copy of the last n trades, newest last.
func (t *TradeTape) recent(n int) []Trade {
	if n <= 0 || n > len(t.trades) {
		n = len(t.trades)
	}
	out := make([]Trade, n)
	copy(out, t.trades[len(t.trades)-n:])
	return out
}

func (t *TradeTape) len() int {
	return len(t.trades)
}

// TradeFlowSummary is the aggregate returned by C5.summary.
type TradeFlowSummary struct {
	TotalVolume   uint64
	TradeCount    int
	BuyVolume     uint64
	SellVolume    uint64
	VWAP          decimal.Decimal
	AvgSize       decimal.Decimal
	BuySellRatio  decimal.Decimal
}

// summary computes C5.summary over trades with ts >= now-window.
func (t *TradeTape) summary(now time.Time, window time.Duration) TradeFlowSummary {
	cutoff := now.Add(-window)
	var total, buyVol, sellVol uint64
	var count int
	notional := decimal.Zero
	for _, tr := range t.trades {
		if tr.Ts.Before(cutoff) {
			continue
		}
		count++
		total += tr.Volume
		switch tr.Side {
		case SideBuy:
			buyVol += tr.Volume
		case SideSell:
			sellVol += tr.Volume
		}
		contribution, err := tr.Price.Mul(decimal.MustNew(int64(tr.Volume), 0))
		if err == nil {
			notional, _ = notional.Add(contribution)
		}
	}
	summary := TradeFlowSummary{TotalVolume: total, TradeCount: count, BuyVolume: buyVol, SellVolume: sellVol}
	if total > 0 {
		vwap, err := notional.Quo(decimal.MustNew(int64(total), 0))
		if err == nil {
			summary.VWAP = vwap
		}
	}
	if count > 0 {
		avg, err := decimal.MustNew(int64(total), 0).Quo(decimal.MustNew(int64(count), 0))
		if err == nil {
			summary.AvgSize = avg
		}
	}
	if sellVol > 0 {
		ratio, err := decimal.MustNew(int64(buyVol), 0).Quo(decimal.MustNew(int64(sellVol), 0))
		if err == nil {
			summary.BuySellRatio = ratio
		}
	}
	return summary
}

// DeltaClassification buckets cumulative delta magnitude per §4.5.
type DeltaClassification string

const (
	DeltaStrongBuy  DeltaClassification = "strong_buy"
	DeltaBuy        DeltaClassification = "buy"
	DeltaNeutral    DeltaClassification = "neutral"
	DeltaSell       DeltaClassification = "sell"
	DeltaStrongSell DeltaClassification = "strong_sell"
)

// CumulativeDelta is the result of C5.cumulative_delta.
type CumulativeDelta struct {
	Delta          int64
	Classification DeltaClassification
	Series         []int64
}

// cumulativeDelta computes running buy-minus-sell volume over the window,
// classifying the final delta at the +-100/+-500 thresholds.
func (t *TradeTape) cumulativeDelta(now time.Time, window time.Duration) CumulativeDelta {
	cutoff := now.Add(-window)
	var running int64
	series := make([]int64, 0)
	for _, tr := range t.trades {
		if tr.Ts.Before(cutoff) {
			continue
		}
		switch tr.Side {
		case SideBuy:
			running += int64(tr.Volume)
		case SideSell:
			running -= int64(tr.Volume)
		}
		series = append(series, running)
	}
	return CumulativeDelta{Delta: running, Classification: classifyDelta(running), Series: series}
}

func classifyDelta(delta int64) DeltaClassification {
	switch {
	case delta >= 500:
		return DeltaStrongBuy
	case delta >= 100:
		return DeltaBuy
	case delta <= -500:
		return DeltaStrongSell
	case delta <= -100:
		return DeltaSell
	default:
		return DeltaNeutral
	}
}

// VolumeBucket is one bucket of the volume profile.
type VolumeBucket struct {
	BucketIndex int64
	MeanPrice   decimal.Decimal
	TotalVolume uint64
}

// ValueArea spans the mean prices of the buckets taken in descending
// volume order until they cover 70% of volume; the buckets need not be
// adjacent to the POC.
type ValueArea struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

// VolumeProfile is the result of C5.volume_profile.
type VolumeProfile struct {
	Buckets   []VolumeBucket
	POC       VolumeBucket
	ValueArea ValueArea
}

// volumeProfile buckets trades by floor(price/bucketSize), identifies the
// point of control, and derives the value area per §4.5.
func (t *TradeTape) volumeProfile(bucketSize decimal.Decimal) VolumeProfile {
	type acc struct {
		sumPrice decimal.Decimal
		count    int64
		vol      uint64
	}
	buckets := make(map[int64]*acc)
	for _, tr := range t.trades {
		q, err := tr.Price.Quo(bucketSize)
		if err != nil {
			continue
		}
		qf, ok := q.Float64()
		if !ok {
			continue
		}
		idxInt := int64(math.Floor(qf))
		a, exists := buckets[idxInt]
		if !exists {
			a = &acc{sumPrice: decimal.Zero}
			buckets[idxInt] = a
		}
		a.sumPrice, _ = a.sumPrice.Add(tr.Price)
		a.count++
		a.vol += tr.Volume
	}

	out := make([]VolumeBucket, 0, len(buckets))
	var total uint64
	for idx, a := range buckets {
		mean := decimal.Zero
		if a.count > 0 {
			mean, _ = a.sumPrice.Quo(decimal.MustNew(a.count, 0))
		}
		out = append(out, VolumeBucket{BucketIndex: idx, MeanPrice: mean, TotalVolume: a.vol})
		total += a.vol
	}

	if len(out) == 0 {
		return VolumeProfile{}
	}

	poc := out[0]
	for _, b := range out[1:] {
		if b.TotalVolume > poc.TotalVolume {
			poc = b
		}
	}

	sorted := append([]VolumeBucket(nil), out...)
	sortBucketsDesc(sorted)

	target := float64(total) * 0.7
	var cum uint64
	valueSet := make([]VolumeBucket, 0)
	for _, b := range sorted {
		valueSet = append(valueSet, b)
		cum += b.TotalVolume
		if float64(cum) >= target {
			break
		}
	}

	high, low := valueSet[0].MeanPrice, valueSet[0].MeanPrice
	for _, b := range valueSet[1:] {
		if b.MeanPrice.Cmp(high) > 0 {
			high = b.MeanPrice
		}
		if b.MeanPrice.Cmp(low) < 0 {
			low = b.MeanPrice
		}
	}

	return VolumeProfile{Buckets: out, POC: poc, ValueArea: ValueArea{High: high, Low: low}}
}

func sortBucketsDesc(b []VolumeBucket) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j].TotalVolume > b[j-1].TotalVolume; j-- {
			b[j], b[j-1] = b[j-1], b[j]
		}
	}
}
