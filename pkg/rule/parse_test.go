package rule

import (
	"testing"
	"time"
)

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		interval Interval
		cons     []Constraint
	}{
		{name: "suffixed every", raw: "every:5m", interval: Interval{Unit: Minute, Count: 5}},
		{name: "interval prefix", raw: "interval:45s", interval: Interval{Unit: Second, Count: 45}},
		{name: "bare duration", raw: "10m", interval: Interval{Unit: Minute, Count: 10}},
		{name: "compound duration", raw: "1h30m", interval: Interval{Unit: Minute, Count: 90}},
		{name: "sub-minute duration", raw: "90s", interval: Interval{Unit: Second, Count: 90}},
		{name: "weeks", raw: "every:2w", interval: Interval{Unit: Week, Count: 2}},
		{name: "months", raw: "every:1mo", interval: Interval{Unit: Month, Count: 1}},
		{
			name:     "hour range",
			raw:      "every:5m hour:8-10",
			interval: Interval{Unit: Minute, Count: 5},
			cons:     []Constraint{{Field: FieldHour, Lo: 8, Hi: 10}},
		},
		{
			name:     "named weekdays",
			raw:      "every:1d weekday:mon-fri",
			interval: Interval{Unit: Day, Count: 1},
			cons:     []Constraint{{Field: FieldWeekday, Lo: 1, Hi: 5}},
		},
		{
			name:     "multiple fields",
			raw:      "every:1h day:1-7 minute:30 second:0",
			interval: Interval{Unit: Hour, Count: 1},
			cons: []Constraint{
				{Field: FieldSecond, Lo: 0, Hi: 0},
				{Field: FieldMinute, Lo: 30, Hi: 30},
				{Field: FieldDay, Lo: 1, Hi: 7},
			},
		},
		{
			name:     "daily wall-clock",
			raw:      "07:30",
			interval: Interval{Unit: Day, Count: 1},
			cons: []Constraint{
				{Field: FieldMinute, Lo: 30, Hi: 30},
				{Field: FieldHour, Lo: 7, Hi: 7},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.raw, err)
			}
			r, ok := s.(Rule)
			if !ok {
				t.Fatalf("Parse(%q) = %T, want Rule", tt.raw, s)
			}
			if r.Interval() != tt.interval {
				t.Fatalf("interval = %+v, want %+v", r.Interval(), tt.interval)
			}
			got := r.Constraints()
			if len(got) != len(tt.cons) {
				t.Fatalf("constraints = %+v, want %+v", got, tt.cons)
			}
			for i := range tt.cons {
				if got[i] != tt.cons[i] {
					t.Fatalf("constraint[%d] = %+v, want %+v", i, got[i], tt.cons[i])
				}
			}
		})
	}
}

func TestParseCronForms(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"*/5 * * * *",
		"cron:0 3 * * *",
		"0 30 3 * * *", // six fields, leading seconds
		"@hourly",
		"@every 55m",
	} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			s, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse(%q): %v", raw, err)
			}
			if _, ok := s.(CronSchedule); !ok {
				t.Fatalf("Parse(%q) = %T, want CronSchedule", raw, s)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"not-a-schedule",
		"every:",
		"every:0m",
		"every:5m hour:10-8",
		"every:5m hour:8-24",
		"every:5m fortnight:1",
		"every:5m hour",
		"cron:",
		"cron:* * *",
		"500ms",
		"25:00",
		"07:60",
	} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			if s, err := Parse(raw); err == nil {
				t.Fatalf("Parse(%q) = %v, want error", raw, s)
			}
		})
	}
}

func TestParseDailyAtSemantics(t *testing.T) {
	t.Parallel()
	s, err := Parse("03:30")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if s.Due(day.Add(3*time.Hour+29*time.Minute), time.Time{}) {
		t.Fatal("due at 03:29")
	}
	at := day.Add(3*time.Hour + 30*time.Minute)
	if !s.Due(at, time.Time{}) {
		t.Fatal("not due at 03:30")
	}
	// Once fired, the daily cadence holds until tomorrow's window.
	if s.Due(at.Add(time.Minute), at) {
		t.Fatal("due again within the same window after firing")
	}
	if !s.Due(at.AddDate(0, 0, 1), at) {
		t.Fatal("not due at 03:30 the next day")
	}
}

func TestMustParsePanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("MustParse did not panic on invalid input")
		}
	}()
	MustParse("every:never")
}
