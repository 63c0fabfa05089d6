package config

import "testing"

func TestValidateRequiresSymbolAndTimeframes(t *testing.T) {
	cfg := &Config{Environment: "development"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when Symbol is empty")
	}

	cfg.Symbol = "ESZ5"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when Timeframes is empty")
	}

	cfg.Timeframes = []string{"1min"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestValidateRequiresVendorURLsInProduction(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Symbol:      "ESZ5",
		Timeframes:  []string{"1min"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for missing historical/realtime URLs in production")
	}

	cfg.Historical.BaseURL = "https://vendor.example.com"
	cfg.Realtime.URL = "wss://vendor.example.com/stream"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error once URLs are set: %s", err)
	}
}

func TestGetEnvAsBoolFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("TEST_BOOL_FLAG", "not-a-bool")
	if got := getEnvAsBool("TEST_BOOL_FLAG", true); got != true {
		t.Fatalf("got %v, want fallback default true for an unparsable value", got)
	}
}

func TestGetEnvAsSliceSplitsOnSeparator(t *testing.T) {
	t.Setenv("TEST_TF_LIST", "1min,5min,1hr")
	got := getEnvAsSlice("TEST_TF_LIST", nil, ",")
	want := []string{"1min", "5min", "1hr"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
