package marketdata

import (
	"fmt"
	"time"
)

// Unit is a bucket granularity. The zero value is invalid; always obtain
// a Unit through ParseTimeframeName or the named constants below.
type Unit int

const (
	Second Unit = iota + 1
	Minute
	Hour
	Day
	Week
	Month
)

// Timeframe identifies one bar series: an (interval, unit) pair plus the
// short name the engine was configured with (e.g. "5min").
type Timeframe struct {
	Name     string
	Interval int
	Unit     Unit
}

// timeframeCatalog is the closed set the engine accepts at construction.
// Unknown names fail with ErrInvalidTimeframe (spec.md §6).
var timeframeCatalog = map[string]Timeframe{
	"1sec":   {Name: "1sec", Interval: 1, Unit: Second},
	"5sec":   {Name: "5sec", Interval: 5, Unit: Second},
	"10sec":  {Name: "10sec", Interval: 10, Unit: Second},
	"15sec":  {Name: "15sec", Interval: 15, Unit: Second},
	"30sec":  {Name: "30sec", Interval: 30, Unit: Second},
	"1min":   {Name: "1min", Interval: 1, Unit: Minute},
	"5min":   {Name: "5min", Interval: 5, Unit: Minute},
	"15min":  {Name: "15min", Interval: 15, Unit: Minute},
	"30min":  {Name: "30min", Interval: 30, Unit: Minute},
	"1hr":    {Name: "1hr", Interval: 1, Unit: Hour},
	"4hr":    {Name: "4hr", Interval: 4, Unit: Hour},
	"1day":   {Name: "1day", Interval: 1, Unit: Day},
	"1week":  {Name: "1week", Interval: 1, Unit: Week},
	"1month": {Name: "1month", Interval: 1, Unit: Month},
}

// ParseTimeframeName resolves a configured timeframe name to its
// (interval, unit) pair. Unknown names are rejected at construction time
// per spec.md §6, rather than discovered later against an unknown map key.
func ParseTimeframeName(name string) (Timeframe, error) {
	tf, ok := timeframeCatalog[name]
	if !ok {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, name)
	}
	return tf, nil
}

// floorDiv is integer division that rounds toward negative infinity,
// needed so bucket arithmetic is well defined for instants before the
// reference epoch used by the week/month bucketing below.
func floorDiv(a, b int) int {
	q := a / b
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

// mondayEpoch is a known Monday used as the anchor for week-bucket math;
// any Monday works, this one is arbitrary.
var mondayEpoch = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)

// BucketStart computes the bucket-start instant for ts under tf, in zone.
// Lower fields are zeroed and the remaining field is floored to a multiple
// of tf.Interval, relative to the start of its immediate parent field —
// exactly the rule spec.md §4.1 describes for intervals that don't evenly
// divide their natural period.
func BucketStart(ts time.Time, tf Timeframe, zone *time.Location) time.Time {
	t := ts.In(zone)
	switch tf.Unit {
	case Second:
		sec := floorDiv(t.Second(), tf.Interval) * tf.Interval
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), sec, 0, zone)
	case Minute:
		min := floorDiv(t.Minute(), tf.Interval) * tf.Interval
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), min, 0, 0, zone)
	case Hour:
		hr := floorDiv(t.Hour(), tf.Interval) * tf.Interval
		return time.Date(t.Year(), t.Month(), t.Day(), hr, 0, 0, 0, zone)
	case Day:
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, zone)
		_, offset := midnight.Zone()
		days := floorDiv(int(midnight.Unix())+offset, 86400)
		bucketDays := floorDiv(days, tf.Interval) * tf.Interval
		return midnight.AddDate(0, 0, bucketDays-days)
	case Week:
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, zone)
		_, offset := midnight.Zone()
		daysSinceAnchor := floorDiv(int(midnight.Unix())+offset, 86400) - int(mondayEpoch.Unix()/86400)
		bucketDays := floorDiv(daysSinceAnchor, 7*tf.Interval) * 7 * tf.Interval
		return midnight.AddDate(0, 0, bucketDays-daysSinceAnchor)
	case Month:
		monthsSinceEpoch := t.Year()*12 + int(t.Month()) - 1
		bucketMonths := floorDiv(monthsSinceEpoch, tf.Interval) * tf.Interval
		y := bucketMonths / 12
		m := time.Month(bucketMonths%12 + 1)
		return time.Date(y, m, 1, 0, 0, 0, 0, zone)
	default:
		return time.Time{}
	}
}
