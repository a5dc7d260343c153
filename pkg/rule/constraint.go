package rule

import (
	"strconv"
	"time"
)

// Field identifies the calendar component a constraint applies to.
type Field int

const (
	FieldSecond  Field = iota // second-of-minute, 0..59
	FieldMinute               // minute-of-hour, 0..59
	FieldHour                 // hour-of-day, 0..23
	FieldDay                  // day-of-month, 1..31
	FieldWeekday              // day-of-week, Sunday=0..Saturday=6
)

func (f Field) String() string {
	switch f {
	case FieldSecond:
		return "second"
	case FieldMinute:
		return "minute"
	case FieldHour:
		return "hour"
	case FieldDay:
		return "day"
	case FieldWeekday:
		return "weekday"
	default:
		return "field(?)"
	}
}

// domain returns the inclusive bounds valid for the field.
func (f Field) domain() (lo, hi int) {
	switch f {
	case FieldSecond, FieldMinute:
		return 0, 59
	case FieldHour:
		return 0, 23
	case FieldDay:
		return 1, 31
	case FieldWeekday:
		return 0, 6
	default:
		return 0, -1
	}
}

// component reads the field's value out of t, in t's location.
func (f Field) component(t time.Time) int {
	switch f {
	case FieldSecond:
		return t.Second()
	case FieldMinute:
		return t.Minute()
	case FieldHour:
		return t.Hour()
	case FieldDay:
		return t.Day()
	case FieldWeekday:
		return int(t.Weekday())
	default:
		return -1
	}
}

// Constraint restricts one calendar field to an inclusive range.
// A single permitted value has Lo == Hi. Ranges never wrap.
type Constraint struct {
	Field Field
	Lo    int
	Hi    int
}

// NewConstraint validates bounds against the field's domain and ordering.
func NewConstraint(f Field, lo, hi int) (Constraint, error) {
	dlo, dhi := f.domain()
	if dhi < dlo {
		return Constraint{}, &InvalidConstraintError{Field: f, Lo: lo, Hi: hi, Reason: "unknown field"}
	}
	if lo < dlo || lo > dhi || hi < dlo || hi > dhi {
		return Constraint{}, &InvalidConstraintError{
			Field: f, Lo: lo, Hi: hi,
			Reason: "bounds must lie in " + strconv.Itoa(dlo) + ".." + strconv.Itoa(dhi),
		}
	}
	if lo > hi {
		return Constraint{}, &InvalidConstraintError{Field: f, Lo: lo, Hi: hi, Reason: "bounds reversed (ranges do not wrap)"}
	}
	return Constraint{Field: f, Lo: lo, Hi: hi}, nil
}

// Matches reports whether t's component lies inside the range.
func (c Constraint) Matches(t time.Time) bool {
	v := c.Field.component(t)
	return v >= c.Lo && v <= c.Hi
}

// String renders the compact form accepted by Parse, e.g. "hour:8-10".
func (c Constraint) String() string {
	s := c.Field.String() + ":" + strconv.Itoa(c.Lo)
	if c.Hi != c.Lo {
		s += "-" + strconv.Itoa(c.Hi)
	}
	return s
}
