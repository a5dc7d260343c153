package rule

import (
	"testing"
	"time"
)

func TestCronDue(t *testing.T) {
	t.Parallel()
	c, err := Cron("*/5 * * * *")
	if err != nil {
		t.Fatalf("Cron: %v", err)
	}

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Never fired: due only at a matching instant, no replay of history.
	if c.Due(base.Add(2*time.Minute), time.Time{}) {
		t.Fatal("due between matches with no history")
	}
	if !c.Due(base.Add(5*time.Minute), time.Time{}) {
		t.Fatal("not due at a matching instant")
	}

	// Anchored to the last fire: the next match is due once passed, and
	// several missed matches collapse into a single dueness.
	last := base.Add(5 * time.Minute)
	if c.Due(last.Add(4*time.Minute+59*time.Second), last) {
		t.Fatal("due before the next cron match")
	}
	if !c.Due(last.Add(5*time.Minute), last) {
		t.Fatal("not due at the next cron match")
	}
	if !c.Due(last.Add(22*time.Minute), last) {
		t.Fatal("not due after several missed matches")
	}
}

func TestCronNext(t *testing.T) {
	t.Parallel()
	c, err := Cron("0 3 * * *")
	if err != nil {
		t.Fatalf("Cron: %v", err)
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	if got := c.Next(now, time.Time{}); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// A pending unfired match is reported, not skipped.
	last := time.Date(2026, 3, 13, 3, 0, 0, 0, time.UTC)
	pending := time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)
	if got := c.Next(now, last); !got.Equal(pending) {
		t.Fatalf("Next = %v, want pending match %v", got, pending)
	}

	// Next at an exact match instant returns that instant.
	if got := c.Next(want, want.Add(-24*time.Hour)); !got.Equal(want) {
		t.Fatalf("Next at match = %v, want %v", got, want)
	}
}

func TestCronString(t *testing.T) {
	t.Parallel()
	c := MustCron("*/10 8-10 * * *")
	if got := c.String(); got != "cron:*/10 8-10 * * *" {
		t.Fatalf("String = %q", got)
	}

	s, err := Parse(c.String())
	if err != nil {
		t.Fatalf("Parse(String()): %v", err)
	}
	if _, ok := s.(CronSchedule); !ok {
		t.Fatalf("round trip = %T, want CronSchedule", s)
	}
}

func TestCronInvalid(t *testing.T) {
	t.Parallel()
	if _, err := Cron("61 * * * *"); err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustCron did not panic")
		}
	}()
	MustCron("nope")
}
