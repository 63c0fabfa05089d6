package marketdata

import (
	"testing"
	"time"
)

func TestBestBidAskComputesSpreadAndMid(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now},
		{Price: mustDec(t, "101"), Volume: 5, Type: 1, Timestamp: now},
	}, now)

	bba := e.BestBidAsk()
	if !bba.HaveBid || !bba.HaveAsk {
		t.Fatal("expected both sides present")
	}
	if bba.Spread.Cmp(mustDec(t, "1")) != 0 {
		t.Fatalf("spread = %s, want 1", bba.Spread)
	}
	if bba.Mid.Cmp(mustDec(t, "100.5")) != 0 {
		t.Fatalf("mid = %s, want 100.5", bba.Mid)
	}
}

func TestImbalanceBullishWhenBidVolumeDominates(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 90, Type: 2, Timestamp: now},
		{Price: mustDec(t, "101"), Volume: 10, Type: 1, Timestamp: now},
	}, now)

	imb := e.Imbalance(now)
	if imb.Direction != Bullish {
		t.Fatalf("direction = %v, want bullish (ratio=%f)", imb.Direction, imb.Ratio)
	}
}

func TestImbalanceNeutralWithNoLiquidity(t *testing.T) {
	e := newTestEngine(t, "1min")
	imb := e.Imbalance(time.Now())
	if imb.Direction != Neutral || imb.Confidence != "low" {
		t.Fatalf("got %+v, want neutral/low with empty book", imb)
	}
}

func TestDepthInRangeSumsOnlyWithinBounds(t *testing.T) {
	e := newTestEngine(t, "1min")
	now := time.Now()
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 5, Type: 2, Timestamp: now},
		{Price: mustDec(t, "99"), Volume: 3, Type: 2, Timestamp: now},
		{Price: mustDec(t, "101"), Volume: 5, Type: 1, Timestamp: now},
		{Price: mustDec(t, "110"), Volume: 100, Type: 1, Timestamp: now},
	}, now)

	dr, ok := e.DepthInRange(mustDec(t, "2"))
	if !ok {
		t.Fatal("expected a depth range result with both sides populated")
	}
	if dr.BidVolume != 8 || dr.AskVolume != 5 {
		t.Fatalf("got bid=%d ask=%d, want bid=8 ask=5 (far level 110 excluded)", dr.BidVolume, dr.AskVolume)
	}
}

func TestIcebergScoresSurfacesRollingSampleHistory(t *testing.T) {
	e := newTestEngine(t, "1min")
	base := time.Now()
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		e.applyDepthBatch([]DepthEntry{
			{Price: mustDec(t, "100"), Volume: 50, Type: 1, Timestamp: ts},
		}, ts)
	}

	scores := e.IcebergScores()
	if len(scores) != 1 {
		t.Fatalf("scores = %d, want 1", len(scores))
	}
	s := scores[0]
	if s.Side != Ask || s.Price.Cmp(mustDec(t, "100")) != 0 {
		t.Fatalf("unexpected level: %+v", s)
	}
	if s.Classification == "" {
		t.Fatalf("expected a non-empty classification for a steady repeated refresh, got score=%f", s.Score)
	}
}

func TestIcebergScoresOmitDepletedLevels(t *testing.T) {
	e := newTestEngine(t, "1min")
	base := time.Now()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		e.applyDepthBatch([]DepthEntry{
			{Price: mustDec(t, "100"), Volume: 50, Type: 1, Timestamp: ts},
		}, ts)
	}
	e.applyDepthBatch([]DepthEntry{
		{Price: mustDec(t, "100"), Volume: 0, Type: 1, Timestamp: base},
	}, base)

	if scores := e.IcebergScores(); len(scores) != 0 {
		t.Fatalf("scores = %d, want 0 once the level is no longer resting", len(scores))
	}
}
