package rule

import (
	"sort"
	"strings"
	"time"
)

// Schedule decides whether a job should fire at a given instant.
// Rule and CronSchedule both satisfy it.
type Schedule interface {
	// Due reports whether a job whose last fire happened at last should
	// fire at now. A zero last means the job has never fired.
	Due(now, last time.Time) bool

	// Next returns the earliest instant at or after now at which Due would
	// hold, or the zero time if none is found within the search horizon.
	// It is advisory (used for previews and snapshots); Due is the
	// authoritative check.
	Next(now, last time.Time) time.Time

	// String renders the schedule in the form accepted by Parse.
	String() string
}

// Rule couples a recurrence interval with calendar constraints.
// The zero value is not a valid rule; construct via New, the Builder, or
// Parse. Rules are immutable and safe for concurrent use.
type Rule struct {
	interval Interval
	cons     []Constraint // at most one per field, sorted by field
}

// New validates the parts and returns an immutable rule. At most one
// constraint per field is allowed.
func New(iv Interval, cons ...Constraint) (Rule, error) {
	iv, err := NewInterval(iv.Count, iv.Unit)
	if err != nil {
		return Rule{}, err
	}
	seen := make(map[Field]bool, len(cons))
	cp := make([]Constraint, 0, len(cons))
	for _, c := range cons {
		c, err := NewConstraint(c.Field, c.Lo, c.Hi)
		if err != nil {
			return Rule{}, err
		}
		if seen[c.Field] {
			return Rule{}, &InvalidConstraintError{Field: c.Field, Lo: c.Lo, Hi: c.Hi, Reason: "duplicate constraint for field"}
		}
		seen[c.Field] = true
		cp = append(cp, c)
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Field < cp[j].Field })
	return Rule{interval: iv, cons: cp}, nil
}

// Interval returns the rule's recurrence interval.
func (r Rule) Interval() Interval { return r.interval }

// Constraints returns a copy of the rule's constraints, sorted by field.
func (r Rule) Constraints() []Constraint {
	return append([]Constraint(nil), r.cons...)
}

func (r Rule) constraint(f Field) (Constraint, bool) {
	for _, c := range r.cons {
		if c.Field == f {
			return c, true
		}
	}
	return Constraint{}, false
}

// Due reports whether a job with the given last-fired instant is due at
// now. Calendar components are read in now's location.
func (r Rule) Due(now, last time.Time) bool {
	if !r.eligible(now) {
		return false
	}
	if last.IsZero() {
		return true
	}
	return !now.Before(r.interval.Next(last))
}

// eligible reports whether every constrained field of t matches.
func (r Rule) eligible(t time.Time) bool {
	for _, c := range r.cons {
		if !c.Matches(t) {
			return false
		}
	}
	return true
}

// nextHorizon bounds the forward search in Next. Any satisfiable
// constraint combination recurs well within this window.
const nextHorizon = 5 * 366 * 24 * time.Hour

// Next returns the earliest instant at or after now at which Due would
// hold: the cadence boundary (or now itself, for a never-fired job)
// advanced to the first calendar-eligible instant. Zero when nothing
// matches within the horizon.
func (r Rule) Next(now, last time.Time) time.Time {
	from := now
	if !last.IsZero() {
		if n := r.interval.Next(last); n.After(from) {
			from = n
		}
	}
	return r.nextEligible(from)
}

// nextEligible advances t field by field, coarsest first, until every
// constraint matches. Each adjustment moves t strictly forward to a field
// boundary, so the walk terminates quickly (day steps are the slowest;
// a few hundred at worst for rare day/weekday combinations).
func (r Rule) nextEligible(t time.Time) time.Time {
	if len(r.cons) == 0 {
		return t
	}

	// Round up to a whole second; constraints have second granularity.
	if ns := t.Nanosecond(); ns > 0 {
		t = t.Add(time.Duration(1e9 - ns))
	}
	limit := t.Add(nextHorizon)
	loc := t.Location()

	for t.Before(limit) {
		y, mo, d := t.Date()

		if c, ok := r.constraint(FieldDay); ok && !c.Matches(t) {
			t = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
			continue
		}
		if c, ok := r.constraint(FieldWeekday); ok && !c.Matches(t) {
			t = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
			continue
		}

		if c, ok := r.constraint(FieldHour); ok {
			switch h := t.Hour(); {
			case h < c.Lo:
				t = time.Date(y, mo, d, c.Lo, 0, 0, 0, loc)
				continue
			case h > c.Hi:
				t = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
				continue
			}
		}

		if c, ok := r.constraint(FieldMinute); ok {
			switch m := t.Minute(); {
			case m < c.Lo:
				t = time.Date(y, mo, d, t.Hour(), c.Lo, 0, 0, loc)
				continue
			case m > c.Hi:
				t = time.Date(y, mo, d, t.Hour()+1, 0, 0, 0, loc)
				continue
			}
		}

		if c, ok := r.constraint(FieldSecond); ok {
			switch s := t.Second(); {
			case s < c.Lo:
				t = time.Date(y, mo, d, t.Hour(), t.Minute(), c.Lo, 0, loc)
				continue
			case s > c.Hi:
				t = time.Date(y, mo, d, t.Hour(), t.Minute()+1, 0, 0, loc)
				continue
			}
		}

		return t
	}
	return time.Time{}
}

// String renders the compact form accepted by Parse,
// e.g. "every:5m hour:8-10".
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString("every:")
	b.WriteString(r.interval.String())
	for _, c := range r.cons {
		b.WriteString(" ")
		b.WriteString(c.String())
	}
	return b.String()
}
