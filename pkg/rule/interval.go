package rule

import (
	"strconv"
	"time"
)

// Unit is the granularity of a recurrence interval.
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
	Day
	Week
	Month
)

func (u Unit) String() string {
	switch u {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "unit(?)"
	}
}

// suffix is the compact form used by Parse and String.
func (u Unit) suffix() string {
	switch u {
	case Second:
		return "s"
	case Minute:
		return "m"
	case Hour:
		return "h"
	case Day:
		return "d"
	case Week:
		return "w"
	case Month:
		return "mo"
	default:
		return "?"
	}
}

// Interval is a recurrence of "every Count Units".
type Interval struct {
	Unit  Unit
	Count int
}

// NewInterval validates and returns an interval. Count must be at least 1
// and Unit must be one of the declared units.
func NewInterval(count int, unit Unit) (Interval, error) {
	if unit < Second || unit > Month {
		return Interval{}, &InvalidIntervalError{Unit: unit, Count: count, Reason: "unknown unit"}
	}
	if count < 1 {
		return Interval{}, &InvalidIntervalError{Unit: unit, Count: count, Reason: "count must be >= 1"}
	}
	return Interval{Unit: unit, Count: count}, nil
}

// Next returns the instant one interval after t.
//
// Day, week and month use calendar-aware addition: "1 day" spans a DST
// transition as one wall-clock day, and "1 month" from Jan 31 follows Go's
// AddDate normalization (Mar 2/3). Second, minute and hour are fixed
// durations.
func (iv Interval) Next(t time.Time) time.Time {
	switch iv.Unit {
	case Second:
		return t.Add(time.Duration(iv.Count) * time.Second)
	case Minute:
		return t.Add(time.Duration(iv.Count) * time.Minute)
	case Hour:
		return t.Add(time.Duration(iv.Count) * time.Hour)
	case Day:
		return t.AddDate(0, 0, iv.Count)
	case Week:
		return t.AddDate(0, 0, 7*iv.Count)
	case Month:
		return t.AddDate(0, iv.Count, 0)
	default:
		return t.Add(time.Duration(iv.Count) * time.Second)
	}
}

// String renders the compact form accepted by Parse, e.g. "5m" or "2w".
func (iv Interval) String() string {
	return strconv.Itoa(iv.Count) + iv.Unit.suffix()
}
