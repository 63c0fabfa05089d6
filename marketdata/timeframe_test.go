package marketdata

import (
	"testing"
	"time"
)

func TestParseTimeframeNameUnknown(t *testing.T) {
	if _, err := ParseTimeframeName("3min"); err == nil {
		t.Fatal("expected ErrInvalidTimeframe for unknown name")
	}
}

func TestParseTimeframeNameKnown(t *testing.T) {
	tf, err := ParseTimeframeName("5min")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if tf.Interval != 5 || tf.Unit != Minute {
		t.Fatalf("got %+v", tf)
	}
}

func TestBucketStartMinuteFloors(t *testing.T) {
	tf, _ := ParseTimeframeName("5min")
	ts := time.Date(2026, 7, 29, 10, 37, 42, 0, time.UTC)
	got := BucketStart(ts, tf, time.UTC)
	want := time.Date(2026, 7, 29, 10, 35, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestBucketStartHourFloors(t *testing.T) {
	tf, _ := ParseTimeframeName("4hr")
	ts := time.Date(2026, 7, 29, 13, 5, 0, 0, time.UTC)
	got := BucketStart(ts, tf, time.UTC)
	want := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestBucketStartWeekAnchorsMonday(t *testing.T) {
	tf, _ := ParseTimeframeName("1week")
	// Wednesday 2026-07-29; week must bucket back to Monday 2026-07-27.
	ts := time.Date(2026, 7, 29, 15, 0, 0, 0, time.UTC)
	got := BucketStart(ts, tf, time.UTC)
	want := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got.Weekday() != time.Monday {
		t.Fatalf("bucket start %v is not a Monday", got)
	}
}

func TestBucketStartMonthFloors(t *testing.T) {
	tf, _ := ParseTimeframeName("1month")
	ts := time.Date(2026, 7, 29, 15, 0, 0, 0, time.UTC)
	got := BucketStart(ts, tf, time.UTC)
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFloorDivNegative(t *testing.T) {
	if got := floorDiv(-1, 5); got != -1 {
		t.Fatalf("floorDiv(-1,5) = %d, want -1", got)
	}
	if got := floorDiv(-5, 5); got != -1 {
		t.Fatalf("floorDiv(-5,5) = %d, want -1", got)
	}
	if got := floorDiv(-6, 5); got != -2 {
		t.Fatalf("floorDiv(-6,5) = %d, want -2", got)
	}
}
