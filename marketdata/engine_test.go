package marketdata

import (
	"testing"
	"time"
)

func newTestEngine(t *testing.T, timeframes ...string) *Engine {
	t.Helper()
	if len(timeframes) == 0 {
		timeframes = []string{"1min", "5min"}
	}
	e, err := NewEngine(EngineConfig{
		Symbol:           "TESTZ5",
		Zone:             time.UTC,
		Timeframes:       timeframes,
		MaxBarsPerSeries: 100,
		MaxLevelsPerSide: 50,
		MaxTrades:        100,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %s", err)
	}
	return e
}

func TestNewEngineRejectsUnknownTimeframe(t *testing.T) {
	_, err := NewEngine(EngineConfig{Symbol: "X", Timeframes: []string{"7min"}}, nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown timeframe name")
	}
}

func TestIngestFansOutToEveryConfiguredTimeframe(t *testing.T) {
	e := newTestEngine(t, "1min", "5min")

	ts := time.Date(2026, 7, 29, 10, 2, 0, 0, time.UTC)
	e.Ingest(NormalizedTick{Ts: ts, Price: mustDec(t, "100"), Volume: 10, Kind: KindTrade})

	bars, err := e.GetBars("1min", 0)
	if err != nil {
		t.Fatalf("GetBars(1min): %s", err)
	}
	if len(bars) != 1 {
		t.Fatalf("1min bars = %d, want 1", len(bars))
	}
	bars, err = e.GetBars("5min", 0)
	if err != nil {
		t.Fatalf("GetBars(5min): %s", err)
	}
	if len(bars) != 1 {
		t.Fatalf("5min bars = %d, want 1", len(bars))
	}
}

func TestDispatchPreservesCommitOrderAcrossChannels(t *testing.T) {
	e := newTestEngine(t, "1min")

	var order []string
	e.Subscribe(ChannelNewBar, func(interface{}) { order = append(order, "new_bar") })
	e.Subscribe(ChannelDataUpdate, func(interface{}) { order = append(order, "data_update") })

	ts := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	e.Ingest(NormalizedTick{Ts: ts, Price: mustDec(t, "100"), Volume: 1, Kind: KindTrade})

	if len(order) != 2 || order[0] != "new_bar" || order[1] != "data_update" {
		t.Fatalf("dispatch order = %v, want [new_bar data_update]", order)
	}
}

func TestSubscribeInvokesHandlersInRegistrationOrder(t *testing.T) {
	e := newTestEngine(t, "1min")

	var order []int
	e.Subscribe(ChannelDataUpdate, func(interface{}) { order = append(order, 1) })
	e.Subscribe(ChannelDataUpdate, func(interface{}) { order = append(order, 2) })
	e.Subscribe(ChannelDataUpdate, func(interface{}) { order = append(order, 3) })

	e.Ingest(NormalizedTick{Ts: time.Now(), Price: mustDec(t, "100"), Volume: 1, Kind: KindTrade})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handler order = %v, want [1 2 3]", order)
	}
}

func TestUnsubscribeStopsFurtherDispatch(t *testing.T) {
	e := newTestEngine(t, "1min")

	calls := 0
	id := e.Subscribe(ChannelDataUpdate, func(interface{}) { calls++ })
	e.Ingest(NormalizedTick{Ts: time.Now(), Price: mustDec(t, "100"), Volume: 1, Kind: KindTrade})
	e.Unsubscribe(ChannelDataUpdate, id)
	e.Ingest(NormalizedTick{Ts: time.Now(), Price: mustDec(t, "101"), Volume: 1, Kind: KindTrade})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (handler should stop firing after Unsubscribe)", calls)
	}
}

func TestDispatchRecoversPanickingSubscriber(t *testing.T) {
	e := newTestEngine(t, "1min")

	calledAfterPanic := false
	e.Subscribe(ChannelDataUpdate, func(interface{}) { panic("boom") })
	e.Subscribe(ChannelDataUpdate, func(interface{}) { calledAfterPanic = true })

	e.Ingest(NormalizedTick{Ts: time.Now(), Price: mustDec(t, "100"), Volume: 1, Kind: KindTrade})

	if !calledAfterPanic {
		t.Fatal("a panicking subscriber must not prevent later subscribers from running")
	}
}
