package marketdata

import (
	"math"
	"time"

	"github.com/govalues/decimal"
)

// Direction is the bullish/bearish/neutral read of an imbalance measure.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// BestBidAsk is the C9 best_bid_ask snapshot.
type BestBidAsk struct {
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	HaveBid bool
	HaveAsk bool
	Spread  decimal.Decimal
	Mid     decimal.Decimal
	HaveMid bool
}

// BestBidAsk computes (bid.best, ask.best, spread, mid).
func (e *Engine) BestBidAsk() BestBidAsk {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.bestBidAskLocked()
}

func (e *Engine) bestBidAskLocked() BestBidAsk {
	out := BestBidAsk{}
	if lvl, ok := e.book.bid.best(); ok {
		out.Bid, out.HaveBid = lvl.Price, true
	}
	if lvl, ok := e.book.ask.best(); ok {
		out.Ask, out.HaveAsk = lvl.Price, true
	}
	if out.HaveBid && out.HaveAsk {
		if spread, err := out.Ask.Sub(out.Bid); err == nil {
			out.Spread = spread
		}
		if sum, err := out.Bid.Add(out.Ask); err == nil {
			if mid, err := sum.Quo(decimal.MustNew(2, 0)); err == nil {
				out.Mid, out.HaveMid = mid, true
			}
		}
	}
	return out
}

// Imbalance is the C8 top-5-level imbalance measure.
type Imbalance struct {
	Ratio      float64
	Direction  Direction
	Confidence string
}

// Imbalance computes the top-5-level book imbalance, raising confidence
// to "high" when its sign agrees with the 5-minute trade-tape imbalance
// at magnitude > 0.2.
func (e *Engine) Imbalance(now time.Time) Imbalance {
	e.bookMu.RLock()
	bidTop := e.book.bid.top(5)
	askTop := e.book.ask.top(5)
	var bidVol, askVol uint64
	for _, l := range bidTop {
		bidVol += l.Volume
	}
	for _, l := range askTop {
		askVol += l.Volume
	}
	total := bidVol + askVol
	flow := e.tape.summary(now, 5*time.Minute)
	e.bookMu.RUnlock()

	if total == 0 {
		return Imbalance{Direction: Neutral, Confidence: "low"}
	}

	ratio := (float64(bidVol) - float64(askVol)) / float64(total)
	dir := Neutral
	switch {
	case ratio > 0.3:
		dir = Bullish
	case ratio < -0.3:
		dir = Bearish
	}

	confidence := "low"
	tapeRatio := 0.0
	if sided := flow.BuyVolume + flow.SellVolume; sided > 0 {
		tapeRatio = (float64(flow.BuyVolume) - float64(flow.SellVolume)) / float64(sided)
	}
	sameSign := (ratio > 0 && tapeRatio > 0) || (ratio < 0 && tapeRatio < 0)
	if sameSign && absFloat(tapeRatio) > 0.2 {
		confidence = "high"
	}

	return Imbalance{Ratio: ratio, Direction: dir, Confidence: confidence}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CumulativeDelta implements C5.cumulative_delta as an Engine-level call.
func (e *Engine) CumulativeDelta(now time.Time, window time.Duration) CumulativeDelta {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.tape.cumulativeDelta(now, window)
}

// VolumeProfile implements C5.volume_profile as an Engine-level call.
func (e *Engine) VolumeProfile(bucketSize decimal.Decimal) VolumeProfile {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.tape.volumeProfile(bucketSize)
}

// DepthRange is the C8 depth_in_range result for one side.
type DepthRange struct {
	BidVolume uint64
	BidLevels int
	AskVolume uint64
	AskLevels int
}

// DepthInRange sums volume/levels with price in [mid-delta, mid] on bids
// and [mid, mid+delta] on asks.
func (e *Engine) DepthInRange(delta decimal.Decimal) (DepthRange, bool) {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()

	mid, ok := e.midLocked()
	if !ok {
		return DepthRange{}, false
	}
	lower, err := mid.Sub(delta)
	if err != nil {
		return DepthRange{}, false
	}
	upper, err := mid.Add(delta)
	if err != nil {
		return DepthRange{}, false
	}

	bidVol, bidLevels := e.book.bid.depthInRange(lower, mid)
	askVol, askLevels := e.book.ask.depthInRange(mid, upper)
	return DepthRange{BidVolume: bidVol, BidLevels: bidLevels, AskVolume: askVol, AskLevels: askLevels}, true
}

// LiquidityLevel is a level annotated with its liquidity score.
type LiquidityLevel struct {
	Side           Side
	Price          decimal.Decimal
	Volume         uint64
	LiquidityScore float64
}

// LiquidityLevels returns levels on both sides with volume >= minVolume,
// each scored by volume / mean_volume_of_qualifying_levels.
func (e *Engine) LiquidityLevels(minVolume uint64) []LiquidityLevel {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()

	var qualifying []LiquidityLevel
	for _, side := range []Side{Bid, Ask} {
		bs := e.book.bid
		if side == Ask {
			bs = e.book.ask
		}
		for _, lvl := range bs.levels {
			if lvl.Volume >= minVolume {
				qualifying = append(qualifying, LiquidityLevel{Side: side, Price: lvl.Price, Volume: lvl.Volume})
			}
		}
	}

	if len(qualifying) == 0 {
		return qualifying
	}

	var sum uint64
	for _, l := range qualifying {
		sum += l.Volume
	}
	mean := float64(sum) / float64(len(qualifying))
	if mean == 0 {
		return qualifying
	}
	for i := range qualifying {
		qualifying[i].LiquidityScore = float64(qualifying[i].Volume) / mean
	}
	return qualifying
}

// Cluster is a greedy price cluster from C8.
type Cluster struct {
	Center      decimal.Decimal
	RangeLow    decimal.Decimal
	RangeHigh   decimal.Decimal
	TotalVolume uint64
	OrderCount  int
	VWAP        decimal.Decimal
}

// Clusters sweeps the top-N levels of side, forming a cluster whenever
// consecutive prices fall within tolerance; only clusters with at least
// minSize members are reported.
func (e *Engine) Clusters(side Side, topN int, tolerance decimal.Decimal, minSize int) []Cluster {
	e.bookMu.RLock()
	var levels []PriceLevel
	if side == Bid {
		levels = e.book.bid.top(topN)
	} else {
		levels = e.book.ask.top(topN)
	}
	e.bookMu.RUnlock()

	var clusters []Cluster
	var current []PriceLevel

	flush := func() {
		if len(current) >= minSize {
			clusters = append(clusters, buildCluster(current))
		}
		current = nil
	}

	for i, lvl := range levels {
		if i == 0 {
			current = append(current, lvl)
			continue
		}
		prev := current[len(current)-1]
		diff, err := lvl.Price.Sub(prev.Price)
		if err != nil {
			flush()
			current = append(current, lvl)
			continue
		}
		if diff.Abs().Cmp(tolerance) <= 0 {
			current = append(current, lvl)
		} else {
			flush()
			current = append(current, lvl)
		}
	}
	flush()

	return clusters
}

func buildCluster(levels []PriceLevel) Cluster {
	low, high := levels[0].Price, levels[0].Price
	var total uint64
	notional := decimal.Zero
	for _, l := range levels {
		if l.Price.Cmp(low) < 0 {
			low = l.Price
		}
		if l.Price.Cmp(high) > 0 {
			high = l.Price
		}
		total += l.Volume
		if contribution, err := l.Price.Mul(decimal.MustNew(int64(l.Volume), 0)); err == nil {
			notional, _ = notional.Add(contribution)
		}
	}
	vwap := decimal.Zero
	if total > 0 {
		if v, err := notional.Quo(decimal.MustNew(int64(total), 0)); err == nil {
			vwap = v
		}
	}
	sum, _ := low.Add(high)
	center, _ := sum.Quo(decimal.MustNew(2, 0))
	return Cluster{Center: center, RangeLow: low, RangeHigh: high, TotalVolume: total, OrderCount: len(levels), VWAP: vwap}
}

// SRLevelType tags a support/resistance level by how it was derived.
type SRLevelType string

const (
	SRVolumeCluster       SRLevelType = "volume_cluster"
	SROrderbookLiquidity  SRLevelType = "orderbook_liquidity"
)

// SRLevel is one support/resistance level.
type SRLevel struct {
	Price    decimal.Decimal
	Strength float64
	Type     SRLevelType
	Above    bool // true if above mid (resistance), false if below (support)
}

// SupportResistance unions volume-profile POCs above 1.5x mean with
// liquidity levels scoring >= 1, partitioned by position relative to mid.
func (e *Engine) SupportResistance(bucketSize decimal.Decimal, minLiquidityVolume uint64) []SRLevel {
	e.bookMu.RLock()
	profile := e.tape.volumeProfile(bucketSize)
	mid, haveMid := e.midLocked()
	e.bookMu.RUnlock()

	if !haveMid {
		return nil
	}

	var out []SRLevel

	if len(profile.Buckets) > 0 {
		var sum uint64
		for _, b := range profile.Buckets {
			sum += b.TotalVolume
		}
		mean := float64(sum) / float64(len(profile.Buckets))
		for _, b := range profile.Buckets {
			if mean > 0 && float64(b.TotalVolume) > 1.5*mean {
				out = append(out, SRLevel{
					Price:    b.MeanPrice,
					Strength: float64(b.TotalVolume) / mean,
					Type:     SRVolumeCluster,
					Above:    b.MeanPrice.Cmp(mid) > 0,
				})
			}
		}
	}

	for _, l := range e.LiquidityLevels(minLiquidityVolume) {
		if l.LiquidityScore >= 1 {
			out = append(out, SRLevel{
				Price:    l.Price,
				Strength: l.LiquidityScore,
				Type:     SROrderbookLiquidity,
				Above:    l.Price.Cmp(mid) > 0,
			})
		}
	}

	return out
}

// IcebergScore is the C8 iceberg heuristic output for one level.
type IcebergScore struct {
	Price              decimal.Decimal
	Side               Side
	Score              float64
	Classification     string
	EstimatedHiddenSize uint64
}

// icebergSample is one observation of a level within the rolling window.
type icebergSample struct {
	ts     time.Time
	volume uint64
}

// maxIcebergSamples bounds the rolling per-level history to the fixed
// 100-sample deque required by §4.8.
const maxIcebergSamples = 100

// icebergKey identifies one (side, price) level's rolling sample history.
type icebergKey struct {
	side  Side
	price string
}

// recordIcebergSample appends one observation to price's rolling window
// on side and trims it to maxIcebergSamples, oldest first. Also folds
// volume into the side's running total, the denominator ScoreIceberg
// uses for volume_significance. Caller holds bookMu.
func (e *Engine) recordIcebergSample(side Side, price decimal.Decimal, volume uint64, ts time.Time) {
	key := icebergKey{side: side, price: price.String()}
	samples := append(e.icebergSamples[key], icebergSample{ts: ts, volume: volume})
	if len(samples) > maxIcebergSamples {
		samples = samples[len(samples)-maxIcebergSamples:]
	}
	e.icebergSamples[key] = samples
	e.icebergVolume[side] += volume
}

// icebergFeatureWeights sum to 1, per §4.8.
var icebergFeatureWeights = map[string]float64{
	"volume_consistency":   0.2,
	"refresh_regularity":   0.2,
	"round_price":          0.1,
	"volume_significance":  0.2,
	"refresh_frequency":    0.15,
	"time_persistence":     0.1,
	"volume_replenishment": 0.05,
}

// classifyIceberg maps a composite score to the fixed threshold bands.
func classifyIceberg(score float64) string {
	switch {
	case score >= 0.9:
		return "very_high"
	case score >= 0.8:
		return "high"
	case score >= 0.7:
		return "medium"
	case score >= 0.6:
		return "low"
	default:
		return ""
	}
}

// ScoreIceberg computes the iceberg heuristic for one level's rolling
// sample history. samples must be ordered oldest-first and capped to 100
// by the caller (the per-level rolling deque).
func ScoreIceberg(price decimal.Decimal, side Side, samples []icebergSample, tickSize decimal.Decimal, totalObserved uint64) IcebergScore {
	if len(samples) < 2 {
		return IcebergScore{Price: price, Side: side}
	}

	var sumVol, meanVol float64
	for _, s := range samples {
		sumVol += float64(s.volume)
	}
	meanVol = sumVol / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := float64(s.volume) - meanVol
		variance += d * d
	}
	variance /= float64(len(samples))
	stddev := math.Sqrt(variance)
	volumeConsistency := 1.0
	if meanVol > 0 {
		volumeConsistency = 1.0 - clamp01(stddev/meanVol)
	}

	var gaps []float64
	for i := 1; i < len(samples); i++ {
		gaps = append(gaps, samples[i].ts.Sub(samples[i-1].ts).Seconds())
	}
	gapMean := meanFloat(gaps)
	var gapVar float64
	for _, g := range gaps {
		d := g - gapMean
		gapVar += d * d
	}
	if len(gaps) > 0 {
		gapVar /= float64(len(gaps))
	}
	refreshRegularity := 1.0
	if gapMean > 0 {
		refreshRegularity = 1.0 - clamp01(math.Sqrt(gapVar)/gapMean)
	}

	roundPrice := 0.0
	if !tickSize.IsZero() {
		if ratio, err := price.Quo(tickSize); err == nil {
			if f, ok := ratio.Float64(); ok {
				if f == float64(int64(f)) {
					roundPrice = 1.0
				}
			}
		}
	}

	volumeSignificance := 0.0
	if totalObserved > 0 {
		volumeSignificance = clamp01(sumVol / float64(totalObserved))
	}

	refreshFrequency := clamp01(float64(len(samples)) / 100.0)

	span := samples[len(samples)-1].ts.Sub(samples[0].ts)
	timePersistence := clamp01(span.Minutes() / 30.0)

	volumeReplenishment := 0.0
	replenishCount := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].volume >= samples[i-1].volume {
			replenishCount++
		}
	}
	if len(samples) > 1 {
		volumeReplenishment = float64(replenishCount) / float64(len(samples)-1)
	}

	score := volumeConsistency*icebergFeatureWeights["volume_consistency"] +
		refreshRegularity*icebergFeatureWeights["refresh_regularity"] +
		roundPrice*icebergFeatureWeights["round_price"] +
		volumeSignificance*icebergFeatureWeights["volume_significance"] +
		refreshFrequency*icebergFeatureWeights["refresh_frequency"] +
		timePersistence*icebergFeatureWeights["time_persistence"] +
		volumeReplenishment*icebergFeatureWeights["volume_replenishment"]

	hidden := meanVol * (3 + 7*score)
	hiddenCap := float64(5 * totalObserved)
	if hidden > hiddenCap {
		hidden = hiddenCap
	}

	return IcebergScore{
		Price:               price,
		Side:                side,
		Score:               score,
		Classification:      classifyIceberg(score),
		EstimatedHiddenSize: uint64(hidden),
	}
}

// IcebergScores implements C8: the iceberg heuristic scored over every
// (side, price) level with a rolling sample history, restricted to
// levels currently resting in the book. Classification "" (below the
// 0.6 low-confidence threshold) is dropped from the result.
func (e *Engine) IcebergScores() []IcebergScore {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()

	tickSize := e.instrument.TickSize
	out := make([]IcebergScore, 0, len(e.icebergSamples))
	for key, samples := range e.icebergSamples {
		if _, resting := bookSideFor(&e.book, key.side).levels[key.price]; !resting {
			continue
		}
		price, err := decimal.Parse(key.price)
		if err != nil {
			continue
		}
		score := ScoreIceberg(price, key.side, samples, tickSize, e.icebergVolume[key.side])
		if score.Classification == "" {
			continue
		}
		out = append(out, score)
	}
	return out
}

// bookSideFor returns the BookSide for side.
func bookSideFor(b *book, side Side) *BookSide {
	if side == Bid {
		return b.bid
	}
	return b.ask
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func meanFloat(fs []float64) float64 {
	if len(fs) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum / float64(len(fs))
}
