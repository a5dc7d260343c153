package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cronner/pkg/rule"
)

func TestAddValidation(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	if _, err := d.Add(JobSpec{Schedule: everySeconds(t, 1)}); !errors.Is(err, ErrNilCallable) {
		t.Fatalf("Add without callable = %v, want ErrNilCallable", err)
	}
	if _, err := d.Add(JobSpec{Run: func(ctx context.Context) error { return nil }}); !errors.Is(err, ErrNoSchedule) {
		t.Fatalf("Add without schedule = %v, want ErrNoSchedule", err)
	}

	h, err := d.Add(JobSpec{
		Schedule: everySeconds(t, 1),
		Run:      func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.HasPrefix(h.Name(), "job-") || len(h.Name()) != len("job-")+8 {
		t.Fatalf("auto name = %q, want job-<8 hex chars>", h.Name())
	}
	if h.ID() == "" {
		t.Fatal("handle has no id")
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	var order []string
	add := func(name, tag string) {
		t.Helper()
		if _, err := d.Add(JobSpec{
			Name:     name,
			Schedule: everySeconds(t, 1),
			Run:      func(ctx context.Context) error { order = append(order, tag); return nil },
		}); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	add("a", "a1")
	add("b", "b1")
	add("a", "a2") // replaces, keeps position before b

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d.tick(base)

	want := []string{"a2", "b1"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("fire order = %v, want %v", order, want)
	}
	if n := len(d.Snapshot().Jobs); n != 2 {
		t.Fatalf("jobs = %d, want 2 after upsert", n)
	}
}

func TestUpsertResetsLastFired(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	if _, err := d.Add(JobSpec{
		Name:     "j",
		Schedule: rule.Every(1).Hours().MustBuild(),
		Run:      func(ctx context.Context) error { return nil },
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d.tick(base)

	runs := 0
	if _, err := d.Add(JobSpec{
		Name:     "j",
		Schedule: rule.Every(1).Hours().MustBuild(),
		Run:      func(ctx context.Context) error { runs++; return nil },
	}); err != nil {
		t.Fatalf("re-Add: %v", err)
	}

	// Replacement starts with no history: fires on the next tick.
	d.tick(base.Add(time.Second))
	if runs != 1 {
		t.Fatalf("replacement runs = %d, want 1", runs)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	runs := 0
	if _, err := d.Add(JobSpec{
		Name:     "gone",
		Schedule: everySeconds(t, 1),
		Run:      func(ctx context.Context) error { runs++; return nil },
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := d.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Remove("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove = %v, want ErrNotFound", err)
	}

	d.tick(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	if runs != 0 {
		t.Fatalf("removed job ran %d times", runs)
	}
	if n := len(d.Snapshot().Jobs); n != 0 {
		t.Fatalf("jobs = %d, want 0", n)
	}
}

func TestHandleRemoveDuringOwnRun(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	var h *Handle
	var removeErr error
	var err error
	h, err = d.Add(JobSpec{
		Name:     "self-pruning",
		Schedule: everySeconds(t, 1),
		Run: func(ctx context.Context) error {
			removeErr = h.Remove()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d.tick(base)
	if removeErr != nil {
		t.Fatalf("self-remove: %v", removeErr)
	}
	if n := len(d.Snapshot().Jobs); n != 0 {
		t.Fatalf("jobs = %d, want 0 after self-remove", n)
	}
	// Completion of the in-flight run must not resurrect it.
	d.tick(base.Add(time.Second))
	if n := len(d.Snapshot().Jobs); n != 0 {
		t.Fatalf("jobs = %d after later tick, want 0", n)
	}
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	runs := 0
	h, err := d.Add(JobSpec{
		Name:     "nap",
		Schedule: everySeconds(t, 1),
		Run:      func(ctx context.Context) error { runs++; return nil },
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := h.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d.tick(base)
	d.tick(base.Add(time.Second))
	if runs != 0 {
		t.Fatalf("paused job ran %d times", runs)
	}

	if err := h.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	d.tick(base.Add(2 * time.Second))
	if runs != 1 {
		t.Fatalf("runs = %d after resume, want 1 (overdue job fires at once)", runs)
	}
}

func TestPauseUntilLapsesOnTick(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	runs := 0
	h, err := d.Add(JobSpec{
		Name:     "timed",
		Schedule: everySeconds(t, 1),
		Run:      func(ctx context.Context) error { runs++; return nil },
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if err := h.PauseUntil(base.Add(3 * time.Second)); err != nil {
		t.Fatalf("PauseUntil: %v", err)
	}

	d.tick(base)
	d.tick(base.Add(time.Second))
	if runs != 0 {
		t.Fatalf("runs = %d during pause, want 0", runs)
	}

	// First tick at/after the deadline lifts the pause and evaluates.
	d.tick(base.Add(3 * time.Second))
	if runs != 1 {
		t.Fatalf("runs = %d after pause lapsed, want 1", runs)
	}
	info, err := d.Job("timed")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if info.Paused {
		t.Fatal("job still marked paused after lapse")
	}
}

func TestSpreadDelaysFirstFire(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	runs := 0
	h, err := d.Add(JobSpec{
		Name:     "herd-member",
		Schedule: everySeconds(t, 1),
		Run:      func(ctx context.Context) error { runs++; return nil },
		Spread:   10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	d.mu.Lock()
	j := d.byID[h.ID()]
	notBefore := j.notBefore
	added := d.clock.Now().In(d.loc)
	d.mu.Unlock()

	if notBefore.Before(added.Add(-time.Second)) || !notBefore.Before(added.Add(11*time.Second)) {
		t.Fatalf("notBefore = %v, want within [add, add+10s)", notBefore)
	}

	// A tick past the whole spread window always fires.
	d.tick(notBefore)
	if runs != 1 {
		t.Fatalf("runs = %d at notBefore instant, want 1", runs)
	}
}

func TestJobViewByName(t *testing.T) {
	t.Parallel()
	d := newInline(t, nil)

	if _, err := d.Job("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Job(missing) = %v, want ErrNotFound", err)
	}

	if _, err := d.Add(JobSpec{
		Name:     "seen",
		Schedule: everySeconds(t, 30),
		Run:      func(ctx context.Context) error { return nil },
		Meta:     map[string]string{"owner": "ops"},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	info, err := d.Job("seen")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if info.Schedule != "every:30s" {
		t.Fatalf("Schedule = %q, want every:30s", info.Schedule)
	}
	if info.StateName != "idle" {
		t.Fatalf("StateName = %q, want idle", info.StateName)
	}
	if info.NextDue.IsZero() {
		t.Fatal("NextDue not computed")
	}
	if info.Meta["owner"] != "ops" {
		t.Fatalf("Meta = %v", info.Meta)
	}
}
