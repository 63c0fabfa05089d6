package marketdata

import (
	"testing"
	"time"

	"github.com/govalues/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %s", s, err)
	}
	return d
}

func TestBarSeriesOpensNewBarOnBucketAdvance(t *testing.T) {
	tf, _ := ParseTimeframeName("1min")
	s := newBarSeries(tf, 10, false)

	b0 := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	bar, isNew := s.appendOrUpdate(b0, mustDec(t, "100"), 5)
	if !isNew {
		t.Fatal("expected first tick to open a new bar")
	}
	if bar.Open.Cmp(mustDec(t, "100")) != 0 || bar.Volume != 5 {
		t.Fatalf("got %+v", bar)
	}

	b1 := b0.Add(time.Minute)
	_, isNew = s.appendOrUpdate(b1, mustDec(t, "101"), 3)
	if !isNew {
		t.Fatal("expected bucket advance to open a new bar")
	}
	if s.len() != 2 {
		t.Fatalf("len = %d, want 2", s.len())
	}
}

func TestBarSeriesUpdatesOpenBarInPlace(t *testing.T) {
	tf, _ := ParseTimeframeName("1min")
	s := newBarSeries(tf, 10, false)

	b0 := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	s.appendOrUpdate(b0, mustDec(t, "100"), 5)
	bar, isNew := s.appendOrUpdate(b0, mustDec(t, "105"), 2)
	if isNew {
		t.Fatal("same-bucket tick must update in place")
	}
	if bar.High.Cmp(mustDec(t, "105")) != 0 {
		t.Fatalf("high = %s, want 105", bar.High)
	}
	if bar.Close.Cmp(mustDec(t, "105")) != 0 {
		t.Fatalf("close = %s, want 105", bar.Close)
	}
	if bar.Volume != 7 {
		t.Fatalf("volume = %d, want 7", bar.Volume)
	}

	bar, _ = s.appendOrUpdate(b0, mustDec(t, "95"), 1)
	if bar.Low.Cmp(mustDec(t, "95")) != 0 {
		t.Fatalf("low = %s, want 95", bar.Low)
	}
}

func TestBarSeriesDiscardsLateTick(t *testing.T) {
	tf, _ := ParseTimeframeName("1min")
	s := newBarSeries(tf, 10, false)

	b0 := time.Date(2026, 7, 29, 10, 1, 0, 0, time.UTC)
	s.appendOrUpdate(b0, mustDec(t, "100"), 5)

	late := b0.Add(-time.Minute)
	bar, isNew := s.appendOrUpdate(late, mustDec(t, "999"), 50)
	if isNew {
		t.Fatal("late tick must not open a new bar")
	}
	if bar.Close.Cmp(mustDec(t, "100")) != 0 || bar.Volume != 5 {
		t.Fatalf("late tick mutated current bar: %+v", bar)
	}
	if s.len() != 1 {
		t.Fatalf("len = %d, want 1", s.len())
	}
}

func TestBarSeriesEnforceMinVolumeClampsZero(t *testing.T) {
	tf, _ := ParseTimeframeName("1min")
	s := newBarSeries(tf, 10, true)

	b0 := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	bar, _ := s.appendOrUpdate(b0, mustDec(t, "100"), 0)
	if bar.Volume != 1 {
		t.Fatalf("volume = %d, want clamped to 1", bar.Volume)
	}
}

func TestBarSeriesEvictsOldestBeyondCap(t *testing.T) {
	tf, _ := ParseTimeframeName("1min")
	s := newBarSeries(tf, 3, false)

	base := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.appendOrUpdate(base.Add(time.Duration(i)*time.Minute), mustDec(t, "100"), 1)
	}
	if s.len() != 3 {
		t.Fatalf("len = %d, want 3 after eviction", s.len())
	}
	tail := s.tail(0)
	want := base.Add(2 * time.Minute)
	if !tail[0].BucketStart.Equal(want) {
		t.Fatalf("oldest surviving bucket = %v, want %v", tail[0].BucketStart, want)
	}
}
