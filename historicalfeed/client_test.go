package historicalfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/epic1st/marketcore/marketdata"
)

func TestGetBarsParsesVendorRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bars":[
			{"t":"2026-07-29T10:00:00Z","o":"100.25","h":"101","l":"99.5","c":"100.75","v":42}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	bars, err := client.GetBars(context.Background(), "ESZ5", 1, 1, marketdata.Minute)
	if err != nil {
		t.Fatalf("GetBars: %s", err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
	if bars[0].Volume != 42 {
		t.Fatalf("volume = %d, want 42", bars[0].Volume)
	}
	wantTs := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	if !bars[0].Ts.Equal(wantTs) {
		t.Fatalf("ts = %v, want %v", bars[0].Ts, wantTs)
	}
}

func TestGetBarsSkipsMalformedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[
			{"t":"not-a-timestamp","o":"1","h":"1","l":"1","c":"1","v":1},
			{"t":"2026-07-29T10:00:00Z","o":"100","h":"101","l":"99","c":"100.5","v":10}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	bars, err := client.GetBars(context.Background(), "ESZ5", 1, 1, marketdata.Minute)
	if err != nil {
		t.Fatalf("GetBars: %s", err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1 (malformed row must be skipped)", len(bars))
	}
}

func TestGetInstrumentParsesTickFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"contract_id":"CON123","tick_size":"0.25","tick_value":"12.5"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	inst, err := client.GetInstrument(context.Background(), "ESZ5")
	if err != nil {
		t.Fatalf("GetInstrument: %s", err)
	}
	if inst.ContractID != "CON123" {
		t.Fatalf("contract id = %q, want CON123", inst.ContractID)
	}
}

func TestGetInstrumentWrapsNotFoundError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RetryMax: 1, RetryWait: time.Millisecond})
	_, err := client.GetInstrument(context.Background(), "UNKNOWN")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if !errors.Is(err, marketdata.ErrInstrumentNotFound) {
		t.Fatalf("err = %v, want it to wrap ErrInstrumentNotFound", err)
	}
}
