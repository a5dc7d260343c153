package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T, sup *Supervisor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sup.Wait(ctx)
}

func TestGoErrorCancelsWhenConfigured(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")
	sup := New(context.Background(), WithCancelOnError(true))

	sup.Go("worker", func(ctx context.Context) error { return errBoom })

	err := waitCtx(t, sup)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Wait = %v, want wrapped boom", err)
	}
	select {
	case <-sup.Context().Done():
	default:
		t.Fatal("context not canceled after fatal error")
	}
}

func TestGoPanicBecomesError(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(true))

	sup.Go("worker", func(ctx context.Context) error { panic("kaboom") })

	err := waitCtx(t, sup)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Wait = %v, want recovered panic", err)
	}
}

func TestCleanAndCanceledExitsAreNotFatal(t *testing.T) {
	t.Parallel()
	sup := New(context.Background(), WithCancelOnError(true))

	sup.Go("clean", func(ctx context.Context) error { return nil })
	sup.Go("canceled", func(ctx context.Context) error { return context.Canceled })

	if err := waitCtx(t, sup); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	sup := New(context.Background())

	var attempts atomic.Int32
	sup.GoRestart("flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	if err := waitCtx(t, sup); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
	if n := attempts.Load(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}

	var st *RunStats
	for _, g := range sup.Snapshot().Goroutines {
		if g.Name == "flaky" {
			g := g
			st = &g
		}
	}
	if st == nil {
		t.Fatal("no stats recorded for flaky")
	}
	if st.Restarts != 2 || st.Started != 3 {
		t.Fatalf("stats = %d restarts / %d starts, want 2/3", st.Restarts, st.Started)
	}
}

func TestGoRestartGivesUpAndTurnsFatal(t *testing.T) {
	t.Parallel()
	errStuck := errors.New("stuck")
	sup := New(context.Background(), WithCancelOnError(true))

	var attempts atomic.Int32
	sup.GoRestart("doomed", func(ctx context.Context) error {
		attempts.Add(1)
		return errStuck
	},
		WithRestartBackoff(time.Millisecond, time.Millisecond),
		WithMaxRestarts(2),
		WithFatalOnGiveUp(true),
	)

	err := waitCtx(t, sup)
	if !errors.Is(err, errStuck) {
		t.Fatalf("Wait = %v, want wrapped stuck", err)
	}
	// Initial run plus two restarts.
	if n := attempts.Load(); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
	select {
	case <-sup.Context().Done():
	default:
		t.Fatal("context not canceled after give-up")
	}
}

func TestStopCancelsBlockedGoroutines(t *testing.T) {
	t.Parallel()
	sup := New(context.Background())

	sup.Go("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
	if snap := sup.Snapshot(); snap.Active != 0 {
		t.Fatalf("Active = %d after Stop, want 0", snap.Active)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	sup := New(context.Background())

	release := make(chan struct{})
	sup.Go("stubborn", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sup.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	close(release)
	if err := waitCtx(t, sup); err != nil {
		t.Fatalf("Wait after release = %v", err)
	}
}
