package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parse turns a schedule string into a Schedule.
//
// Supported forms:
//   - Interval rule: "every:5m", "every:2w day:1", "every:5m hour:8-10"
//     with unit suffixes s/m/h/d/w/mo or any Go duration ("1h30m").
//     Constraint tokens are "field:value" or "field:lo-hi" with fields
//     second, minute, hour, day, weekday (weekday accepts sun..sat).
//   - Bare duration: "90s", "1h30m" (same as every:).
//   - Daily at a wall-clock time: "03:30" (every day, hour 3 minute 30).
//   - Cron (crontab.guru-style): "*/5 * * * *", "@hourly", "@every 55m".
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "every:" or "interval:" forces interval parsing
func Parse(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}

	// Prefixes (explicit)
	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return nil, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return Cron(expr)
	}

	fields := strings.Fields(low)

	// Descriptors and @every go straight to the cron parser.
	if strings.HasPrefix(fields[0], "@") {
		return Cron(s)
	}

	if v, ok := strings.CutPrefix(fields[0], "every:"); ok {
		return parseRuleTokens(raw, v, fields[1:])
	}
	if v, ok := strings.CutPrefix(fields[0], "interval:"); ok {
		return parseRuleTokens(raw, v, fields[1:])
	}

	if len(fields) == 1 {
		// Daily wall-clock time => rule constrained to that hour/minute.
		if m := reHHMM.FindStringSubmatch(fields[0]); m != nil {
			return parseDailyAt(raw, m[1], m[2])
		}
		return parseRuleTokens(raw, fields[0], nil)
	}

	// Multi-token without prefixes: either a cron expression or an
	// interval with constraint tokens. Constraint tokens always contain
	// ':'; cron fields never do.
	if !strings.Contains(s, ":") {
		return Cron(s)
	}
	return parseRuleTokens(raw, fields[0], fields[1:])
}

// MustParse is Parse for static registrations; it panics on error.
func MustParse(raw string) Schedule {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	reHHMM  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reEvery = regexp.MustCompile(`^(\d+)(s|m|h|d|w|mo)$`)
)

var unitBySuffix = map[string]Unit{
	"s": Second, "m": Minute, "h": Hour, "d": Day, "w": Week, "mo": Month,
}

func parseRuleTokens(raw, every string, tokens []string) (Schedule, error) {
	iv, err := parseEvery(every)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	cons := make([]Constraint, 0, len(tokens))
	for _, tok := range tokens {
		c, err := parseConstraintToken(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
		}
		cons = append(cons, c)
	}
	r, err := New(iv, cons...)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return r, nil
}

func parseEvery(v string) (Interval, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Interval{}, fmt.Errorf("interval required (like '5m', '2w', '1mo')")
	}
	if m := reEvery.FindStringSubmatch(v); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Interval{}, fmt.Errorf("invalid interval count %q", m[1])
		}
		return NewInterval(n, unitBySuffix[m[2]])
	}
	// Fall back to Go durations for compound forms like "1h30m".
	d, err := time.ParseDuration(v)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q (use '5m', '2w', '1mo' or a Go duration)", v)
	}
	return durationInterval(d)
}

// durationInterval maps a duration onto the coarsest unit that divides it.
func durationInterval(d time.Duration) (Interval, error) {
	switch {
	case d <= 0:
		return Interval{}, fmt.Errorf("interval must be > 0")
	case d%time.Second != 0:
		return Interval{}, fmt.Errorf("interval %s has sub-second precision", d)
	case d%time.Hour == 0:
		return NewInterval(int(d/time.Hour), Hour)
	case d%time.Minute == 0:
		return NewInterval(int(d/time.Minute), Minute)
	default:
		return NewInterval(int(d/time.Second), Second)
	}
}

var fieldByName = map[string]Field{
	"second":  FieldSecond,
	"minute":  FieldMinute,
	"hour":    FieldHour,
	"day":     FieldDay,
	"weekday": FieldWeekday,
}

var weekdayByName = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

func parseConstraintToken(tok string) (Constraint, error) {
	name, spec, ok := strings.Cut(tok, ":")
	if !ok || spec == "" {
		return Constraint{}, fmt.Errorf("invalid constraint %q (use field:value or field:lo-hi)", tok)
	}
	f, ok := fieldByName[name]
	if !ok {
		return Constraint{}, fmt.Errorf("unknown constraint field %q (use second, minute, hour, day, weekday)", name)
	}

	loS, hiS, ranged := strings.Cut(spec, "-")
	lo, err := parseFieldValue(f, loS)
	if err != nil {
		return Constraint{}, err
	}
	hi := lo
	if ranged {
		hi, err = parseFieldValue(f, hiS)
		if err != nil {
			return Constraint{}, err
		}
	}
	return NewConstraint(f, lo, hi)
}

func parseFieldValue(f Field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if f == FieldWeekday {
		if v, ok := weekdayByName[s]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", f, s)
	}
	return v, nil
}

func parseDailyAt(raw, hhS, mmS string) (Schedule, error) {
	hh, err := strconv.Atoi(hhS)
	if err != nil || hh > 23 {
		return nil, fmt.Errorf("invalid schedule %q: hour must be 0..23", raw)
	}
	mm, err := strconv.Atoi(mmS)
	if err != nil || mm > 59 {
		return nil, fmt.Errorf("invalid schedule %q: minute must be 0..59", raw)
	}
	r, err := New(Interval{Unit: Day, Count: 1},
		Constraint{Field: FieldHour, Lo: hh, Hi: hh},
		Constraint{Field: FieldMinute, Lo: mm, Hi: mm},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return r, nil
}
