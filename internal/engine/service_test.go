package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "cronner/pkg/logx"
)

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal(msg)
	}
}

func waitErr(t *testing.T, ch <-chan error, msg string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal(msg)
		return nil
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2, QueueSize: 4}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	ran := make(chan struct{})
	done := make(chan error, 1)
	err := s.Enqueue(Task{
		ID:   "t1",
		Job:  "greeter",
		Run:  func(ctx context.Context) error { close(ran); return nil },
		Done: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitSignal(t, ran, "task never ran")
	if err := waitErr(t, done, "Done never called"); err != nil {
		t.Fatalf("Done err = %v, want nil", err)
	}
}

func TestDoneReceivesErrorAndRecoveredPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 4}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	done := make(chan error, 1)
	if err := s.Enqueue(Task{
		ID:   "t1",
		Job:  "failing",
		Run:  func(ctx context.Context) error { return errors.New("boom") },
		Done: func(err error) { done <- err },
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := waitErr(t, done, "Done never called for error"); err == nil || err.Error() != "boom" {
		t.Fatalf("Done err = %v, want boom", err)
	}

	if err := s.Enqueue(Task{
		ID:   "t2",
		Job:  "panicking",
		Run:  func(ctx context.Context) error { panic("kaboom") },
		Done: func(err error) { done <- err },
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err := waitErr(t, done, "Done never called for panic")
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Done err = %v, want recovered panic", err)
	}
}

func TestEnqueueRefusesWhenQueueFull(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 1}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := Task{
		ID:  "blocker",
		Job: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := s.Enqueue(blocker); err != nil {
		t.Fatalf("Enqueue blocker: %v", err)
	}
	waitSignal(t, started, "blocker never started")

	// One slot buffers, the next is refused.
	queuedDone := make(chan error, 1)
	if err := s.Enqueue(Task{
		ID:   "queued",
		Job:  "q",
		Run:  func(ctx context.Context) error { return nil },
		Done: func(err error) { queuedDone <- err },
	}); err != nil {
		t.Fatalf("Enqueue queued: %v", err)
	}
	err := s.Enqueue(Task{
		ID:  "refused",
		Job: "q",
		Run: func(ctx context.Context) error { return nil },
	})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}
	if snap := s.Snapshot(); snap.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", snap.Dropped)
	}

	close(release)
	if err := waitErr(t, queuedDone, "queued task never completed"); err != nil {
		t.Fatalf("queued Done err = %v", err)
	}
	s.Stop(ctx)
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Enqueue(Task{Job: "x"}); err == nil {
		t.Fatal("expected error for nil Run")
	}
	if err := s.Enqueue(Task{Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for empty Job")
	}
}

func TestEnqueueWhenNotRunning(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	task := Task{Job: "x", Run: func(ctx context.Context) error { return nil }}

	if err := s.Enqueue(task); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue before Start = %v, want ErrStopped", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	s.Stop(ctx)
	if err := s.Enqueue(task); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after Stop = %v, want ErrStopped", err)
	}
}

func TestStopCompletesAbandonedQueuedTasks(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 2}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	blockerDone := make(chan error, 1)
	if err := s.Enqueue(Task{
		ID:  "blocker",
		Job: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
		Done: func(err error) { blockerDone <- err },
	}); err != nil {
		t.Fatalf("Enqueue blocker: %v", err)
	}
	waitSignal(t, started, "blocker never started")

	// These sit in the queue behind the blocker and must never run once
	// Stop is underway; each still gets its Done.
	var ran atomic.Bool
	queuedDone := make(chan error, 2)
	for _, id := range []string{"q1", "q2"} {
		if err := s.Enqueue(Task{
			ID:   id,
			Job:  "queued",
			Run:  func(ctx context.Context) error { ran.Store(true); return nil },
			Done: func(err error) { queuedDone <- err },
		}); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		s.Stop(sctx)
		close(stopped)
	}()

	close(release)
	waitSignal(t, stopped, "Stop never returned")
	if err := waitErr(t, blockerDone, "in-flight Done not called"); err != nil {
		t.Fatalf("blocker Done err = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := waitErr(t, queuedDone, "abandoned Done not called"); !errors.Is(err, ErrStopped) {
			t.Fatalf("abandoned Done err = %v, want ErrStopped", err)
		}
	}
	if ran.Load() {
		t.Fatal("abandoned task ran")
	}
}

func TestStopDrainsInFlight(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 1}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	if err := s.Enqueue(Task{
		ID:  "inflight",
		Job: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			// Deliberately ignores ctx: Stop must still wait it out.
			<-release
			return nil
		},
		Done: func(err error) { done <- err },
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitSignal(t, started, "task never started")

	stopped := make(chan struct{})
	go func() {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		s.Stop(sctx)
		close(stopped)
	}()

	close(release)
	waitSignal(t, stopped, "Stop never returned")
	if err := waitErr(t, done, "in-flight Done not called during Stop"); err != nil {
		t.Fatalf("Done err = %v", err)
	}
	if snap := s.Snapshot(); snap.Running {
		t.Fatal("Snapshot.Running = true after Stop")
	}
}
