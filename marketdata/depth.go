package marketdata

import (
	"time"

	"github.com/govalues/decimal"

	"github.com/epic1st/marketcore/monitoring"
)

// DepthEntry is one parsed vendor depth-frame entry. Parsing vendor
// frames into this sum-typed shape happens at the transport boundary
// (see transport package) so the core never sees raw maps, per the
// schemaless-payload design note.
type DepthEntry struct {
	Price     decimal.Decimal
	Volume    uint64
	Type      int
	Timestamp time.Time
}

// OrderTypeStats are the monotonic counters kept for observability.
type OrderTypeStats struct {
	AskUpdates  uint64
	BidUpdates  uint64
	Trades      uint64
	Modifies    uint64
	OtherTypes  uint64
}

// applyDepthBatch implements C6: route each entry by vendor type against
// the current book/tape under bookMu, updating order_type_stats; entries
// without a timestamp use now. After releasing the lock it dispatches
// market_trade for each appended trade and then market_depth for the
// whole batch. Type 9/10 entries are assigned to a side by
// applyModifyLocked using the current mid price.
func (e *Engine) applyDepthBatch(entries []DepthEntry, now time.Time) {
	var trades []MarketTradeEvent

	e.bookMu.Lock()
	level2 := e.level2Enabled
	for _, entry := range entries {
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = now
		}
		switch entry.Type {
		case 1:
			if level2 {
				e.book.ask.applyUpdate(entry.Price, entry.Volume, ts, "ask")
				e.recordIcebergSample(Ask, entry.Price, entry.Volume, ts)
			}
			e.stats.AskUpdates++
			monitoring.RecordDepthEntry(e.cfg.Symbol, "ask_update")
		case 2:
			if level2 {
				e.book.bid.applyUpdate(entry.Price, entry.Volume, ts, "bid")
				e.recordIcebergSample(Bid, entry.Price, entry.Volume, ts)
			}
			e.stats.BidUpdates++
			monitoring.RecordDepthEntry(e.cfg.Symbol, "bid_update")
		case 5:
			if entry.Volume > 0 {
				trades = append(trades, e.appendTradeLocked(entry.Price, entry.Volume, ts))
			}
			e.stats.Trades++
			monitoring.RecordDepthEntry(e.cfg.Symbol, "trade")
		case 9, 10:
			if level2 {
				e.applyModifyLocked(entry.Price, entry.Volume, ts)
			}
			e.stats.Modifies++
			monitoring.RecordDepthEntry(e.cfg.Symbol, "modify")
		default:
			e.stats.OtherTypes++
			monitoring.RecordDepthEntry(e.cfg.Symbol, "other")
		}
	}
	e.lastDepthUpdate = now
	e.bookMu.Unlock()

	for _, tr := range trades {
		e.dispatch(ChannelMarketTrade, tr)
	}
	e.dispatch(ChannelMarketDepth, entries)
}

// applyModifyLocked handles vendor type 9/10: classify by price vs. the
// current mid; if mid is unknown, write to both sides (lossy, corrected
// by the next unambiguous type 1/2 update). Caller holds bookMu.
func (e *Engine) applyModifyLocked(price decimal.Decimal, volume uint64, ts time.Time) {
	mid, haveMid := e.midLocked()
	if !haveMid {
		e.book.bid.applyUpdate(price, volume, ts, "modify")
		e.book.ask.applyUpdate(price, volume, ts, "modify")
		return
	}
	if price.Cmp(mid) <= 0 {
		e.book.bid.applyUpdate(price, volume, ts, "modify")
	} else {
		e.book.ask.applyUpdate(price, volume, ts, "modify")
	}
}

// midLocked returns the current mid price. Caller holds bookMu.
func (e *Engine) midLocked() (decimal.Decimal, bool) {
	bestBid, haveBid := e.book.bid.best()
	bestAsk, haveAsk := e.book.ask.best()
	if !haveBid || !haveAsk {
		return decimal.Decimal{}, false
	}
	sum, err := bestBid.Price.Add(bestAsk.Price)
	if err != nil {
		return decimal.Decimal{}, false
	}
	mid, err := sum.Quo(decimal.MustNew(2, 0))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return mid, true
}
