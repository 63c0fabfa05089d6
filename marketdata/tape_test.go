package marketdata

import (
	"testing"
	"time"

	"github.com/govalues/decimal"
)

func TestInferSideClassifiesByTopOfBook(t *testing.T) {
	bid, ask := mustDec(t, "100"), mustDec(t, "101")

	if got := inferSide(mustDec(t, "101"), bid, ask, true, true); got != SideBuy {
		t.Fatalf("at-ask print should be SideBuy, got %v", got)
	}
	if got := inferSide(mustDec(t, "100"), bid, ask, true, true); got != SideSell {
		t.Fatalf("at-bid print should be SideSell, got %v", got)
	}
	if got := inferSide(mustDec(t, "100.5"), bid, ask, true, true); got != SideUnknown {
		t.Fatalf("mid print should be SideUnknown, got %v", got)
	}
	if got := inferSide(mustDec(t, "100.5"), bid, ask, false, false); got != SideUnknown {
		t.Fatalf("no top-of-book should be SideUnknown, got %v", got)
	}
}

func TestTradeTapeEvictsOldestOnOverflow(t *testing.T) {
	tape := newTradeTape(2)
	now := time.Now()
	tape.append(mustDec(t, "100"), 1, now, decimal.Zero, decimal.Zero, false, false)
	tape.append(mustDec(t, "101"), 1, now, decimal.Zero, decimal.Zero, false, false)
	tape.append(mustDec(t, "102"), 1, now, decimal.Zero, decimal.Zero, false, false)

	if tape.len() != 2 {
		t.Fatalf("len = %d, want 2", tape.len())
	}
	recent := tape.recent(2)
	if recent[0].Price.Cmp(mustDec(t, "101")) != 0 || recent[1].Price.Cmp(mustDec(t, "102")) != 0 {
		t.Fatalf("unexpected surviving trades: %+v", recent)
	}
}

func TestCumulativeDeltaClassification(t *testing.T) {
	tape := newTradeTape(100)
	now := time.Now()
	ask := mustDec(t, "101")
	bid := mustDec(t, "100")

	// Five aggressive buys of 120 each => delta 600 => strong_buy.
	for i := 0; i < 5; i++ {
		tape.append(ask, 120, now, bid, ask, true, true)
	}
	cd := tape.cumulativeDelta(now.Add(time.Second), time.Minute)
	if cd.Delta != 600 {
		t.Fatalf("delta = %d, want 600", cd.Delta)
	}
	if cd.Classification != DeltaStrongBuy {
		t.Fatalf("classification = %v, want strong_buy", cd.Classification)
	}
}

func TestCumulativeDeltaWindowExcludesOldTrades(t *testing.T) {
	tape := newTradeTape(100)
	base := time.Now()
	ask := mustDec(t, "101")
	bid := mustDec(t, "100")

	tape.append(ask, 200, base.Add(-time.Hour), bid, ask, true, true)
	tape.append(ask, 50, base, bid, ask, true, true)

	cd := tape.cumulativeDelta(base.Add(time.Second), time.Minute)
	if cd.Delta != 50 {
		t.Fatalf("delta = %d, want 50 (old trade must be excluded by window)", cd.Delta)
	}
}
