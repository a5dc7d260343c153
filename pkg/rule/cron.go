package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field, and descriptors like @hourly / @every 5m.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSchedule adapts a cron expression to the Schedule contract.
//
// Unlike Rule, a cron expression names absolute matching instants rather
// than a cadence from the last fire, so a never-fired cron job is not
// immediately due: it fires at its first matching instant. Matches are
// observed at tick granularity; with the last-fired instant as anchor,
// a match that falls between ticks fires on the next tick, and several
// missed matches collapse into a single fire.
type CronSchedule struct {
	expr  string
	sched cron.Schedule
}

// Cron parses a cron expression into a schedule.
func Cron(expr string) (CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("rule: parse cron %q: %w", expr, err)
	}
	return CronSchedule{expr: expr, sched: sched}, nil
}

// MustCron is Cron for static registrations; it panics on error.
func MustCron(expr string) CronSchedule {
	c, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// Due reports whether a matching instant has passed since last. With a
// zero last, only a match inside the past second counts, so a freshly
// registered job does not replay old matches.
func (c CronSchedule) Due(now, last time.Time) bool {
	if c.sched == nil {
		return false
	}
	anchor := last
	if anchor.IsZero() {
		anchor = now.Add(-time.Second)
	}
	return !c.sched.Next(anchor).After(now)
}

// Next returns the pending unfired match if one exists, otherwise the
// first match at or after now.
func (c CronSchedule) Next(now, last time.Time) time.Time {
	if c.sched == nil {
		return time.Time{}
	}
	if !last.IsZero() {
		if p := c.sched.Next(last); !p.After(now) {
			return p
		}
	}
	return c.sched.Next(now.Add(-time.Nanosecond))
}

// String renders the form accepted by Parse.
func (c CronSchedule) String() string { return "cron:" + c.expr }
