package marketdata

import (
	"testing"
	"time"
)

func TestBookSideSortNaturalOrder(t *testing.T) {
	now := time.Now()
	bids := newBookSide(Bid, 10)
	bids.applyUpdate(mustDec(t, "100"), 5, now, "bid")
	bids.applyUpdate(mustDec(t, "102"), 3, now, "bid")
	bids.applyUpdate(mustDec(t, "101"), 4, now, "bid")

	sorted := bids.sorted()
	if len(sorted) != 3 {
		t.Fatalf("len = %d, want 3", len(sorted))
	}
	if sorted[0].Price.Cmp(mustDec(t, "102")) != 0 {
		t.Fatalf("bids must sort descending, got top %s", sorted[0].Price)
	}

	asks := newBookSide(Ask, 10)
	asks.applyUpdate(mustDec(t, "100"), 5, now, "ask")
	asks.applyUpdate(mustDec(t, "98"), 3, now, "ask")
	sorted = asks.sorted()
	if sorted[0].Price.Cmp(mustDec(t, "98")) != 0 {
		t.Fatalf("asks must sort ascending, got top %s", sorted[0].Price)
	}
}

func TestBookSideZeroVolumeRemovesLevel(t *testing.T) {
	now := time.Now()
	side := newBookSide(Bid, 10)
	side.applyUpdate(mustDec(t, "100"), 5, now, "bid")
	if side.len() != 1 {
		t.Fatalf("len = %d, want 1", side.len())
	}
	side.applyUpdate(mustDec(t, "100"), 0, now, "bid")
	if side.len() != 0 {
		t.Fatalf("len = %d, want 0 after zero-volume removal", side.len())
	}
}

func TestBookSideCapEvictsWorstLevels(t *testing.T) {
	now := time.Now()
	bids := newBookSide(Bid, 2)
	bids.applyUpdate(mustDec(t, "100"), 1, now, "bid")
	bids.applyUpdate(mustDec(t, "101"), 1, now, "bid")
	bids.applyUpdate(mustDec(t, "99"), 1, now, "bid")

	if bids.len() != 2 {
		t.Fatalf("len = %d, want 2 after cap", bids.len())
	}
	best, ok := bids.best()
	if !ok || best.Price.Cmp(mustDec(t, "101")) != 0 {
		t.Fatalf("best = %+v, want 101 to survive the cap", best)
	}
	// 99 is the worst bid and should have been evicted, not 100 or 101.
	for _, lvl := range bids.sorted() {
		if lvl.Price.Cmp(mustDec(t, "99")) == 0 {
			t.Fatal("worst level 99 should have been evicted")
		}
	}
}

func TestBookSideDepthInRange(t *testing.T) {
	now := time.Now()
	bids := newBookSide(Bid, 10)
	bids.applyUpdate(mustDec(t, "100"), 5, now, "bid")
	bids.applyUpdate(mustDec(t, "99"), 3, now, "bid")
	bids.applyUpdate(mustDec(t, "95"), 10, now, "bid")

	vol, count := bids.depthInRange(mustDec(t, "98"), mustDec(t, "100"))
	if count != 2 || vol != 8 {
		t.Fatalf("got vol=%d count=%d, want vol=8 count=2", vol, count)
	}
}
