package marketdata

import (
	"testing"
	"time"
)

func TestProcessQuoteSynthesizesMidPriceTick(t *testing.T) {
	e := newTestEngine(t, "1min")

	var seen DataUpdateEvent
	e.Subscribe(ChannelDataUpdate, func(p interface{}) { seen = p.(DataUpdateEvent) })

	frame := QuoteFrame{Bid: mustDec(t, "100"), HaveBid: true, Ask: mustDec(t, "101"), HaveAsk: true}
	e.ProcessQuote(frame, time.Now(), mustDec(t, "0.25"))

	if seen.Price.Cmp(mustDec(t, "100.5")) != 0 {
		t.Fatalf("synthesized mid price = %s, want 100.5", seen.Price)
	}
}

func TestProcessQuoteRetainsPartialFrameState(t *testing.T) {
	e := newTestEngine(t, "1min")

	e.ProcessQuote(QuoteFrame{Bid: mustDec(t, "100"), HaveBid: true}, time.Now(), mustDec(t, "0.25"))

	var update NormalizedQuoteUpdate
	e.Subscribe(ChannelQuoteUpdate, func(p interface{}) { update = p.(NormalizedQuoteUpdate) })
	e.ProcessQuote(QuoteFrame{Ask: mustDec(t, "101"), HaveAsk: true}, time.Now(), mustDec(t, "0.25"))

	if update.Bid.Cmp(mustDec(t, "100")) != 0 || update.Ask.Cmp(mustDec(t, "101")) != 0 {
		t.Fatalf("quote_update = %+v, want bid=100 ask=101 carried over from the first partial frame", update)
	}
}

func TestProcessQuoteFallsBackToSpreadTicksWhenNoLevelMatch(t *testing.T) {
	e := newTestEngine(t, "1min")

	var update NormalizedQuoteUpdate
	e.Subscribe(ChannelQuoteUpdate, func(p interface{}) { update = p.(NormalizedQuoteUpdate) })

	// No book levels exist, so both sides must fall back to the
	// spread-in-ticks estimation table: one tick of 0.25 spread -> 150.
	frame := QuoteFrame{Bid: mustDec(t, "100"), HaveBid: true, Ask: mustDec(t, "100.25"), HaveAsk: true}
	e.ProcessQuote(frame, time.Now(), mustDec(t, "0.25"))

	if !update.SizeEstimated {
		t.Fatal("expected SizeEstimated when no book levels match")
	}
	if update.BidSize != 150 || update.AskSize != 150 {
		t.Fatalf("sizes = %d/%d, want 150/150 for a one-tick spread", update.BidSize, update.AskSize)
	}
}

func TestProcessQuoteUsesLastAndVolumeAsTradeTick(t *testing.T) {
	e := newTestEngine(t, "1min")

	var seen DataUpdateEvent
	e.Subscribe(ChannelDataUpdate, func(p interface{}) { seen = p.(DataUpdateEvent) })

	frame := QuoteFrame{Last: mustDec(t, "102"), HaveLast: true, Volume: 7, HaveVolume: true}
	e.ProcessQuote(frame, time.Now(), mustDec(t, "0.25"))

	if seen.Price.Cmp(mustDec(t, "102")) != 0 || seen.Volume != 7 {
		t.Fatalf("got %+v, want price=102 volume=7", seen)
	}
}
