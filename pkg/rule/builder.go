package rule

import "time"

// Builder accumulates an interval and constraints, then Build validates
// the whole and produces an immutable Rule. Build may be called more than
// once; each call re-validates.
//
//	r, err := rule.Every(30).Seconds().Build()
//	r, err := rule.Every(5).Minutes().HourBetween(8, 10).Build()
//	r, err := rule.Every(1).Months().Day(1).Hour(3).Build()
type Builder struct {
	count   int
	unit    Unit
	unitSet bool
	cons    []Constraint
}

// Every starts a builder for a rule recurring every count units; follow
// with a unit method (Seconds, Minutes, Hours, Days, Weeks, Months).
func Every(count int) *Builder {
	return &Builder{count: count}
}

func (b *Builder) setUnit(u Unit) *Builder {
	b.unit = u
	b.unitSet = true
	return b
}

func (b *Builder) Seconds() *Builder { return b.setUnit(Second) }
func (b *Builder) Minutes() *Builder { return b.setUnit(Minute) }
func (b *Builder) Hours() *Builder   { return b.setUnit(Hour) }
func (b *Builder) Days() *Builder    { return b.setUnit(Day) }
func (b *Builder) Weeks() *Builder   { return b.setUnit(Week) }
func (b *Builder) Months() *Builder  { return b.setUnit(Month) }

func (b *Builder) constrain(f Field, lo, hi int) *Builder {
	b.cons = append(b.cons, Constraint{Field: f, Lo: lo, Hi: hi})
	return b
}

// Second restricts fires to one second-of-minute value (0..59).
func (b *Builder) Second(v int) *Builder { return b.constrain(FieldSecond, v, v) }

// SecondBetween restricts fires to an inclusive second-of-minute range.
func (b *Builder) SecondBetween(lo, hi int) *Builder { return b.constrain(FieldSecond, lo, hi) }

// Minute restricts fires to one minute-of-hour value (0..59).
func (b *Builder) Minute(v int) *Builder { return b.constrain(FieldMinute, v, v) }

// MinuteBetween restricts fires to an inclusive minute-of-hour range.
func (b *Builder) MinuteBetween(lo, hi int) *Builder { return b.constrain(FieldMinute, lo, hi) }

// Hour restricts fires to one hour-of-day value (0..23).
func (b *Builder) Hour(v int) *Builder { return b.constrain(FieldHour, v, v) }

// HourBetween restricts fires to an inclusive hour-of-day range.
func (b *Builder) HourBetween(lo, hi int) *Builder { return b.constrain(FieldHour, lo, hi) }

// Day restricts fires to one day-of-month value (1..31).
func (b *Builder) Day(v int) *Builder { return b.constrain(FieldDay, v, v) }

// DayBetween restricts fires to an inclusive day-of-month range.
func (b *Builder) DayBetween(lo, hi int) *Builder { return b.constrain(FieldDay, lo, hi) }

// Weekday restricts fires to one day-of-week (time.Weekday, Sunday=0).
func (b *Builder) Weekday(d time.Weekday) *Builder {
	return b.constrain(FieldWeekday, int(d), int(d))
}

// WeekdayBetween restricts fires to an inclusive day-of-week range.
func (b *Builder) WeekdayBetween(lo, hi time.Weekday) *Builder {
	return b.constrain(FieldWeekday, int(lo), int(hi))
}

// Build validates the accumulated parts and returns the rule.
func (b *Builder) Build() (Rule, error) {
	if !b.unitSet {
		return Rule{}, &InvalidIntervalError{Unit: -1, Count: b.count, Reason: "interval unit not set (call Seconds/Minutes/Hours/Days/Weeks/Months)"}
	}
	return New(Interval{Unit: b.unit, Count: b.count}, b.cons...)
}

// MustBuild is Build for static registrations; it panics on error.
func (b *Builder) MustBuild() Rule {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
