package marketdata

import (
	"time"

	"github.com/govalues/decimal"
)

// GetBars implements C9.get_bars: a freshly copied snapshot of the last
// n bars for tf (or all, when n <= 0).
func (e *Engine) GetBars(tfName string, n int) ([]Bar, error) {
	e.barsMu.RLock()
	defer e.barsMu.RUnlock()

	series, ok := e.series[tfName]
	if !ok {
		return nil, ErrUnknownTimeframe
	}
	return series.tail(n), nil
}

// GetMTF implements C9.get_mtf: a snapshot across several timeframes (or
// all configured timeframes when names is empty), taken under a single
// barsMu acquisition so readers never see one timeframe "advanced past"
// another between calls.
func (e *Engine) GetMTF(names []string, n int) (map[string][]Bar, error) {
	e.barsMu.RLock()
	defer e.barsMu.RUnlock()

	if len(names) == 0 {
		names = make([]string, 0, len(e.orderedTFs))
		for _, tf := range e.orderedTFs {
			names = append(names, tf.Name)
		}
	}

	out := make(map[string][]Bar, len(names))
	for _, name := range names {
		series, ok := e.series[name]
		if !ok {
			return nil, ErrUnknownTimeframe
		}
		out[name] = series.tail(n)
	}
	return out, nil
}

// CurrentPrice implements C9.current_price: the close of the finest
// configured timeframe's current bar, if any.
func (e *Engine) CurrentPrice() (decimal.Decimal, bool) {
	e.barsMu.RLock()
	defer e.barsMu.RUnlock()

	if len(e.orderedTFs) == 0 {
		return decimal.Decimal{}, false
	}
	finest := e.orderedTFs[0]
	for _, tf := range e.orderedTFs[1:] {
		if tf.Unit < finest.Unit || (tf.Unit == finest.Unit && tf.Interval < finest.Interval) {
			finest = tf
		}
	}
	series := e.series[finest.Name]
	if series.len() == 0 {
		return decimal.Decimal{}, false
	}
	return series.bars[series.len()-1].Close, true
}

// OrderbookSnapshot is the C9.orderbook_snapshot result.
type OrderbookSnapshot struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	CapturedAt time.Time
}

// OrderbookSnapshot implements C9.orderbook_snapshot: up to levels on
// each side, in side-natural order.
func (e *Engine) OrderbookSnapshot(levels int) OrderbookSnapshot {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return OrderbookSnapshot{
		Bids:       e.book.bid.top(levels),
		Asks:       e.book.ask.top(levels),
		CapturedAt: time.Now(),
	}
}

// OrderbookDepth implements C9.orderbook_depth over [mid-rangeDelta, mid+rangeDelta].
func (e *Engine) OrderbookDepth(rangeDelta decimal.Decimal) (DepthRange, bool) {
	return e.DepthInRange(rangeDelta)
}

// RecentTrades implements C9.recent_trades.
func (e *Engine) RecentTrades(n int) []Trade {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.tape.recent(n)
}

// TradeFlowSummaryOverMinutes implements C9.trade_flow_summary over the
// last minutes.
func (e *Engine) TradeFlowSummaryOverMinutes(minutes int) TradeFlowSummary {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.tape.summary(time.Now(), time.Duration(minutes)*time.Minute)
}

// OrderTypeStats implements C9.order_type_stats: the monotonic counters
// from C6, safe to read without the book lock per the design note in §9
// (kept here guarded by bookMu for simplicity since the struct is small
// and copied on read — still never blocks the hot path for longer than a
// copy).
func (e *Engine) OrderTypeStats() OrderTypeStats {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.stats
}

// Statistics is the C9.statistics aggregate report.
type Statistics struct {
	State           string
	Level2Enabled   bool
	LastDepthUpdate time.Time
	OrderTypeStats  OrderTypeStats
	BookBidLevels   int
	BookAskLevels   int
	TradeCount      int
	BarCounts       map[string]int
	Healthy         bool
}

// BarStaleness reports, for every configured timeframe with at least one
// bar, the age in seconds of its last bar's bucket start relative to
// now. Timeframes with no bars yet are omitted — callers treat a missing
// entry as "not yet warmed up" rather than as a staleness breach.
func (e *Engine) BarStaleness(now time.Time) map[string]float64 {
	e.barsMu.RLock()
	defer e.barsMu.RUnlock()

	out := make(map[string]float64, len(e.orderedTFs))
	for _, tf := range e.orderedTFs {
		series := e.series[tf.Name]
		if series.len() == 0 {
			continue
		}
		last := series.bars[series.len()-1]
		out[tf.Name] = now.Sub(last.BucketStart).Seconds()
	}
	return out
}

// Statistics implements C9.statistics.
func (e *Engine) Statistics() Statistics {
	e.stateMu.Lock()
	state := e.state
	e.stateMu.Unlock()

	e.bookMu.RLock()
	bookStats := Statistics{
		Level2Enabled:   e.level2Enabled,
		LastDepthUpdate: e.lastDepthUpdate,
		OrderTypeStats:  e.stats,
		BookBidLevels:   e.book.bid.len(),
		BookAskLevels:   e.book.ask.len(),
		TradeCount:      e.tape.len(),
	}
	e.bookMu.RUnlock()

	e.barsMu.RLock()
	barCounts := make(map[string]int, len(e.series))
	for name, s := range e.series {
		barCounts[name] = s.len()
	}
	e.barsMu.RUnlock()

	bookStats.State = state.String()
	bookStats.BarCounts = barCounts
	bookStats.Healthy = e.Health(time.Now())
	return bookStats
}
