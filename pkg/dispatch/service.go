package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cronner/internal/engine"
	"cronner/internal/events"
	logx "cronner/pkg/logx"
	"cronner/pkg/rule"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Dispatcher owns the tick loop and the job table.
type Dispatcher struct {
	mu    sync.Mutex
	cfg   Config
	log   logx.Logger
	bus   events.Bus
	exec  Executor
	clock clockwork.Clock
	loc   *time.Location

	// jobs preserves registration order; upserts keep the old slot.
	jobs   []*job
	byName map[string]*job
	byID   map[string]*job

	running  bool
	stopping bool
	stopCh   chan struct{}
	stopDone chan struct{}
	runCtx   context.Context

	ticks      uint64
	fires      uint64
	skips      uint64
	drops      uint64
	failures   uint64
	gateVetoes uint64

	dropWarn rate.Sometimes
}

// job is the dispatcher's record of one registration. id, name, meta,
// sched, run and spread are immutable after Add; the rest is guarded by
// the dispatcher mutex.
type job struct {
	id    string
	name  string
	meta  map[string]string
	sched rule.Schedule
	run   Callable

	state       State
	lastFired   time.Time
	paused      bool
	pausedUntil time.Time
	notBefore   time.Time
	removed     bool
	// overlapNoted suppresses repeat skip events while one long fire
	// straddles many ticks.
	overlapNoted bool
	fires        uint64
	failures     uint64
}

// New builds a Dispatcher. exec may be nil for inline-only use; passing
// one without setting cfg.Mode selects ModePool.
func New(cfg Config, exec Executor, log logx.Logger, bus events.Bus) (*Dispatcher, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Mode == "" {
		if exec != nil {
			cfg.Mode = ModePool
		} else {
			cfg.Mode = ModeInline
		}
	}
	switch cfg.Mode {
	case ModeInline, ModePool:
	default:
		return nil, fmt.Errorf("dispatch: unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModePool && exec == nil {
		return nil, fmt.Errorf("dispatch: mode %q requires an executor", ModePool)
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("dispatch: timezone %q: %w", tz, err)
		}
		loc = l
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		exec:     exec,
		clock:    clock,
		loc:      loc,
		byName:   make(map[string]*job),
		byID:     make(map[string]*job),
		dropWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}, nil
}

// Start launches the tick loop. A second Start while the loop is running
// (or still draining after Stop) returns ErrAlreadyRunning.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.stopping = false
	d.stopCh = make(chan struct{})
	d.stopDone = make(chan struct{})
	d.runCtx = ctx
	stopCh, stopDone := d.stopCh, d.stopDone
	cfg := d.cfg
	n := len(d.jobs)
	d.mu.Unlock()

	d.publish(events.Event{Type: events.DispatcherStarted})
	d.log.Info("dispatcher started",
		logx.Duration("tick", cfg.TickInterval),
		logx.String("mode", string(cfg.Mode)),
		logx.String("tz", d.loc.String()),
		logx.Int("jobs", n))

	go d.loop(ctx, stopCh, stopDone)
	return nil
}

// Stop halts ticking after any in-flight tick finishes. It never cancels
// dispatched callables: pool fires keep running on the executor, and an
// inline fire completes its invocation before the loop exits. ctx bounds
// only how long Stop waits for the loop to acknowledge.
func (d *Dispatcher) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	if !d.running || d.stopCh == nil {
		d.mu.Unlock()
		return
	}
	if !d.stopping {
		d.stopping = true
		close(d.stopCh)
	}
	stopDone := d.stopDone
	d.mu.Unlock()

	select {
	case <-stopDone:
	case <-ctx.Done():
		d.log.Warn("dispatcher stop timed out", logx.Err(ctx.Err()))
	}
}

// Running reports whether the tick loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) loop(ctx context.Context, stopCh, stopDone chan struct{}) {
	defer func() {
		d.mu.Lock()
		d.running = false
		d.stopping = false
		d.stopCh = nil
		d.stopDone = nil
		d.runCtx = nil
		d.mu.Unlock()
		d.publish(events.Event{Type: events.DispatcherStopped})
		d.log.Info("dispatcher stopped")
		close(stopDone)
	}()

	t := d.clock.NewTicker(d.cfg.TickInterval)
	defer t.Stop()
	for {
		// Fast-exit so a close of stopCh wins over a pending tick.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.Chan():
			d.tick(d.clock.Now())
		}
	}
}

// tick evaluates every registered job against the tick-observed instant.
// All fires dispatched from this tick stamp lastFired with now.
func (d *Dispatcher) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tick panicked",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	now = now.In(d.loc)
	atomic.AddUint64(&d.ticks, 1)

	d.mu.Lock()
	jobs := append([]*job(nil), d.jobs...)
	gate := d.cfg.Gate
	d.mu.Unlock()

	for _, j := range jobs {
		d.evalOne(j, now, gate)
	}
}

func (d *Dispatcher) evalOne(j *job, now time.Time, gate GateFunc) {
	d.mu.Lock()
	if j.removed {
		d.mu.Unlock()
		return
	}

	if j.state == Running {
		// Still running from an earlier tick: the missed fire is
		// dropped, never queued. Event once per overlap episode.
		first := !j.overlapNoted
		j.overlapNoted = true
		d.mu.Unlock()
		atomic.AddUint64(&d.skips, 1)
		if first {
			d.publishJob(events.JobSkipped, j, "")
			d.log.Debug("job skipped: previous run still in flight", logx.String("job", j.name))
		}
		return
	}

	resumed := false
	if j.paused {
		if j.pausedUntil.IsZero() || now.Before(j.pausedUntil) {
			d.mu.Unlock()
			return
		}
		j.paused = false
		j.pausedUntil = time.Time{}
		resumed = true
	}

	if !j.notBefore.IsZero() {
		if now.Before(j.notBefore) {
			d.mu.Unlock()
			if resumed {
				d.publishJob(events.JobResumed, j, "")
			}
			return
		}
		j.notBefore = time.Time{}
	}

	due := j.sched.Due(now, j.lastFired)
	var info JobInfo
	if due && gate != nil {
		info = d.infoLocked(j, time.Time{})
	}
	d.mu.Unlock()

	if resumed {
		d.publishJob(events.JobResumed, j, "")
		d.log.Debug("job pause expired", logx.String("job", j.name))
	}
	if !due {
		return
	}
	if gate != nil && !gate(info) {
		atomic.AddUint64(&d.gateVetoes, 1)
		return
	}

	d.fire(j, now)
}

// fire marks the job Running and dispatches its callable. tickAt is the
// tick-observed instant the fire belongs to.
func (d *Dispatcher) fire(j *job, tickAt time.Time) {
	d.mu.Lock()
	// Re-check: the gate ran unlocked and Remove/Pause may have raced in.
	if j.removed || j.paused || j.state != Idle {
		d.mu.Unlock()
		return
	}
	j.state = Running
	j.overlapNoted = false
	runCtx := d.runCtx
	mode := d.cfg.Mode
	run := j.run
	d.mu.Unlock()

	if runCtx == nil {
		runCtx = context.Background()
	}

	if mode == ModeInline {
		d.publishJob(events.JobStarted, j, "")
		err := d.runInline(runCtx, j, run)
		d.complete(j, tickAt, err)
		return
	}

	err := d.exec.Enqueue(engine.Task{
		ID:  uuid.NewString(),
		Job: j.name,
		Run: func(ctx context.Context) error {
			d.publishJob(events.JobStarted, j, "")
			return run(ctx)
		},
		Done: func(err error) { d.complete(j, tickAt, err) },
	})
	if err != nil {
		d.dropFire(j, err)
	}
}

// dropFire undoes a fire that never ran: the job returns to Idle with its
// cadence unconsumed, so it comes up due again on the next tick. The warn
// is throttled; a saturated pool drops on every tick.
func (d *Dispatcher) dropFire(j *job, cause error) {
	d.mu.Lock()
	j.state = Idle
	removed := j.removed
	d.mu.Unlock()
	if removed {
		return
	}
	atomic.AddUint64(&d.drops, 1)
	d.publishJob(events.JobDropped, j, cause.Error())
	d.dropWarn.Do(func() {
		d.log.Warn("job fire dropped", logx.String("job", j.name), logx.Err(cause))
	})
}

// runInline invokes the callable on the tick loop, converting a panic
// into an error so one bad job cannot take the loop down.
func (d *Dispatcher) runInline(ctx context.Context, j *job, run Callable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			d.log.Error("job panicked",
				logx.String("job", j.name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	return run(ctx)
}

// complete records the outcome of a fire. lastFired is set to the instant
// of the tick that dispatched the job, not the completion instant, so the
// next cadence window anchors to the tick regardless of run duration. A
// failed fire stamps lastFired all the same; cadence is consumed either
// way. Two non-runs are exceptions: a task the pool abandoned at shutdown
// is a drop, and a job removed while in flight has its outcome discarded.
func (d *Dispatcher) complete(j *job, tickAt time.Time, err error) {
	if err != nil && errors.Is(err, engine.ErrStopped) {
		d.dropFire(j, err)
		return
	}

	d.mu.Lock()
	j.state = Idle
	removed := j.removed
	if !removed {
		j.lastFired = tickAt
		j.fires++
		if err != nil {
			j.failures++
		}
	}
	d.mu.Unlock()
	if removed {
		return
	}

	atomic.AddUint64(&d.fires, 1)
	if err != nil {
		atomic.AddUint64(&d.failures, 1)
		d.publishJob(events.JobFailed, j, err.Error())
		d.log.Warn("job failed", logx.String("job", j.name), logx.Err(err))
		return
	}
	d.publishJob(events.JobFinished, j, "")
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.clock.Now().In(d.loc)
	}
	d.bus.Publish(ev)
}

func (d *Dispatcher) publishJob(typ string, j *job, errMsg string) {
	if d.bus == nil {
		return
	}
	d.publish(events.Event{
		Type: typ,
		Job:  j.name,
		ID:   j.id,
		Err:  errMsg,
		Meta: copyMeta(j.meta),
	})
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
