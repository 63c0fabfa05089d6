package marketdata

import (
	"testing"
	"time"
)

func TestApplyDepthBatchRoutesByVendorType(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()

	entries := []DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now}, // bid
		{Price: mustDec(t, "101"), Volume: 3, Type: 1, Timestamp: now}, // ask
		{Price: mustDec(t, "999"), Volume: 1, Type: 7, Timestamp: now}, // unrecognized
	}
	e.applyDepthBatch(entries, now)

	snap := e.OrderTypeStats()
	if snap.BidUpdates != 1 || snap.AskUpdates != 1 || snap.OtherTypes != 1 {
		t.Fatalf("stats = %+v, want one of each", snap)
	}

	book := e.OrderbookSnapshot(0)
	if len(book.Bids) != 1 || book.Bids[0].Price.Cmp(mustDec(t, "100")) != 0 {
		t.Fatalf("bids = %+v", book.Bids)
	}
	if len(book.Asks) != 1 || book.Asks[0].Price.Cmp(mustDec(t, "101")) != 0 {
		t.Fatalf("asks = %+v", book.Asks)
	}
}

func TestApplyDepthBatchDispatchesTradesBeforeDepth(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()

	var order []string
	e.Subscribe(ChannelMarketTrade, func(interface{}) { order = append(order, "market_trade") })
	e.Subscribe(ChannelMarketDepth, func(interface{}) { order = append(order, "market_depth") })

	entries := []DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now},
		{Price: mustDec(t, "100"), Volume: 10, Type: 5, Timestamp: now},
	}
	e.applyDepthBatch(entries, now)

	if len(order) != 2 || order[0] != "market_trade" || order[1] != "market_depth" {
		t.Fatalf("dispatch order = %v, want [market_trade market_depth] (commit order must be preserved)", order)
	}
}

func TestApplyModifyLockedUsesMidToDisambiguateSide(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()

	// Establish an unambiguous top-of-book so mid is known: bid 100 / ask 102.
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now},
		{Price: mustDec(t, "102"), Volume: 5, Type: 1, Timestamp: now},
	}, now)

	// A type-9 modify below mid (101) must land on the bid side.
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "99"), Volume: 2, Type: 9, Timestamp: now},
	}, now)

	book := e.OrderbookSnapshot(0)
	found := false
	for _, lvl := range book.Bids {
		if lvl.Price.Cmp(mustDec(t, "99")) == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("modify below mid should have landed on the bid side")
	}
}

func TestApplyDepthBatchSkipsBookWhenLevel2Disabled(t *testing.T) {
	e := newTestEngine(t, "1min")
	e.SetLevel2Enabled(false)
	now := time.Now()

	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now},
	}, now)

	book := e.OrderbookSnapshot(0)
	if len(book.Bids) != 0 {
		t.Fatalf("bids = %+v, want none while level2 disabled", book.Bids)
	}
}
