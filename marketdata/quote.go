package marketdata

import (
	"time"

	"github.com/govalues/decimal"
)

// QuoteFrame is one inbound quote update carrying any subset of fields;
// alias resolution (bestBid/bid, bestAsk/ask, lastPrice|last|price) has
// already happened by the time this reaches ProcessQuote — see
// parseQuoteFrame in the transport package.
type QuoteFrame struct {
	Bid      decimal.Decimal
	HaveBid  bool
	Ask      decimal.Decimal
	HaveAsk  bool
	Last     decimal.Decimal
	HaveLast bool
	Volume   uint64
	HaveVolume bool
}

// NormalizedQuoteUpdate is the quote_update callback payload: the
// current bid/ask plus estimated sizes, per §4.7 step 5.
type NormalizedQuoteUpdate struct {
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	BidSize       uint64
	AskSize       uint64
	SizeEstimated bool
}

// estimateSizeFromSpreadTicks is the last-resort size estimation lookup from
// §4.7 step 5: 1 tick spread -> 150, 2 ticks -> 100, else -> 50.
func estimateSizeFromSpreadTicks(ticks int) uint64 {
	switch ticks {
	case 1:
		return 150
	case 2:
		return 100
	default:
		return 50
	}
}

// ProcessQuote implements C7: update QuoteState with any non-null
// bid/ask, decide the synthesized tick kind and price, ingest it via C3,
// and — if both sides are now known — emit quote_update with
// level-matched or spread-estimated sizes.
func (e *Engine) ProcessQuote(frame QuoteFrame, now time.Time, tickSize decimal.Decimal) {
	e.bookMu.Lock()
	if frame.HaveBid {
		e.quote.bid = frame.Bid
		e.quote.haveBid = true
	}
	if frame.HaveAsk {
		e.quote.ask = frame.Ask
		e.quote.haveAsk = true
	}
	bid, haveBid := e.quote.bid, e.quote.haveBid
	ask, haveAsk := e.quote.ask, e.quote.haveAsk
	e.bookMu.Unlock()

	var price decimal.Decimal
	var kind TickKind
	var volume uint64
	haveTick := true

	switch {
	case frame.HaveLast && frame.HaveVolume:
		kind = KindTrade
		price = frame.Last
		volume = frame.Volume
	case haveBid && haveAsk:
		kind = KindQuote
		sum, err := bid.Add(ask)
		if err != nil {
			haveTick = false
			break
		}
		price, err = sum.Quo(decimal.MustNew(2, 0))
		if err != nil {
			haveTick = false
		}
	case haveBid:
		kind = KindQuote
		price = bid
	case haveAsk:
		kind = KindQuote
		price = ask
	default:
		haveTick = false
	}

	if haveTick {
		e.Ingest(NormalizedTick{Ts: now, Price: price, Volume: volume, Kind: kind})
	}

	if !haveBid || !haveAsk {
		return
	}

	update := NormalizedQuoteUpdate{Bid: bid, Ask: ask}
	bidSize, bidMatched := e.sizeAtOrNearLocked(Bid, bid, tickSize)
	askSize, askMatched := e.sizeAtOrNearLocked(Ask, ask, tickSize)
	if bidMatched && askMatched {
		update.BidSize, update.AskSize = bidSize, askSize
	} else {
		spread, err := ask.Sub(bid)
		ticks := 0
		if err == nil && !tickSize.IsZero() {
			if ratio, qerr := spread.Quo(tickSize); qerr == nil {
				if f, ok := ratio.Float64(); ok {
					ticks = int(f + 0.5)
				}
			}
		}
		size := estimateSizeFromSpreadTicks(ticks)
		update.BidSize, update.AskSize = size, size
		update.SizeEstimated = true
	}

	e.dispatch(ChannelQuoteUpdate, update)
}

// sizeAtOrNearLocked looks up the book-side volume at a price within one
// tick of target, used to fill quote_update sizes from Level-2 data when
// available.
func (e *Engine) sizeAtOrNearLocked(side Side, target decimal.Decimal, tickSize decimal.Decimal) (uint64, bool) {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()

	var bs *BookSide
	if side == Bid {
		bs = e.book.bid
	} else {
		bs = e.book.ask
	}

	for _, lvl := range bs.levels {
		diff, err := lvl.Price.Sub(target)
		if err != nil {
			continue
		}
		if diff.Abs().Cmp(tickSize) <= 0 {
			return lvl.Volume, true
		}
	}
	return 0, false
}
