package dispatch

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"cronner/internal/events"
	logx "cronner/pkg/logx"

	"github.com/google/uuid"
)

// Handle identifies a registration. Callables may close over their own
// handle to pause or remove themselves mid-run.
type Handle struct {
	d    *Dispatcher
	id   string
	name string
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

// Add registers a job. It may be called before Start or on a running
// dispatcher; a job added mid-run is evaluated from the next tick on.
// Adding a name that already exists replaces that job in place, keeping
// its evaluation position but resetting state and last-fired.
func (d *Dispatcher) Add(spec JobSpec) (*Handle, error) {
	if spec.Run == nil {
		return nil, ErrNilCallable
	}
	if spec.Schedule == nil {
		return nil, ErrNoSchedule
	}

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		name = "job-" + uuid.NewString()[:8]
	}

	j := &job{
		id:    uuid.NewString(),
		name:  name,
		meta:  copyMeta(spec.Meta),
		sched: spec.Schedule,
		run:   spec.Run,
	}
	now := d.clock.Now().In(d.loc)
	if spec.Spread > 0 {
		j.notBefore = now.Add(spreadJitter(spec.Spread))
	}

	d.mu.Lock()
	if old := d.byName[name]; old != nil {
		old.removed = true
		delete(d.byID, old.id)
		for i := range d.jobs {
			if d.jobs[i] == old {
				d.jobs[i] = j
				break
			}
		}
	} else {
		d.jobs = append(d.jobs, j)
	}
	d.byName[name] = j
	d.byID[j.id] = j
	d.mu.Unlock()

	d.publishJob(events.JobAdded, j, "")
	d.logAdded(j, now)
	return &Handle{d: d, id: j.id, name: name}, nil
}

// logAdded previews the next occurrence so a misconfigured schedule is
// visible at registration time rather than when it never fires.
func (d *Dispatcher) logAdded(j *job, now time.Time) {
	fields := []logx.Field{
		logx.String("job", j.name),
		logx.String("schedule", j.sched.String()),
	}
	if next := j.sched.Next(now, time.Time{}); !next.IsZero() {
		fields = append(fields, logx.Time("next", next), logx.Duration("in", next.Sub(now)))
	}
	d.log.Info("job added", fields...)
}

// Remove unregisters a job by name. A Running fire is not interrupted;
// it completes (and stamps nothing visible, the job is gone).
func (d *Dispatcher) Remove(name string) error {
	d.mu.Lock()
	j := d.byName[name]
	if j == nil {
		d.mu.Unlock()
		return ErrNotFound
	}
	d.removeLocked(j)
	d.mu.Unlock()

	d.publishJob(events.JobRemoved, j, "")
	d.log.Info("job removed", logx.String("job", j.name))
	return nil
}

func (d *Dispatcher) removeLocked(j *job) {
	j.removed = true
	delete(d.byName, j.name)
	delete(d.byID, j.id)
	for i := range d.jobs {
		if d.jobs[i] == j {
			d.jobs = append(d.jobs[:i], d.jobs[i+1:]...)
			break
		}
	}
}

// Remove unregisters the handled job.
func (h *Handle) Remove() error {
	h.d.mu.Lock()
	j := h.d.byID[h.id]
	if j == nil {
		h.d.mu.Unlock()
		return ErrNotFound
	}
	h.d.removeLocked(j)
	h.d.mu.Unlock()

	h.d.publishJob(events.JobRemoved, j, "")
	h.d.log.Info("job removed", logx.String("job", j.name))
	return nil
}

// Pause suspends evaluation indefinitely. The cadence anchor is left
// untouched: pausing neither consumes nor resets last-fired, so a job
// overdue at Resume fires on the next tick.
func (h *Handle) Pause() error { return h.d.pause(h.id, time.Time{}) }

// PauseUntil suspends evaluation until t; the pause lapses on the first
// tick at or after t. A zero t pauses indefinitely.
func (h *Handle) PauseUntil(t time.Time) error { return h.d.pause(h.id, t) }

// PauseFor suspends evaluation for a duration from now.
func (h *Handle) PauseFor(dur time.Duration) error {
	return h.d.pause(h.id, h.d.clock.Now().In(h.d.loc).Add(dur))
}

// Resume lifts a pause. Resuming an unpaused job is a no-op.
func (h *Handle) Resume() error {
	h.d.mu.Lock()
	j := h.d.byID[h.id]
	if j == nil {
		h.d.mu.Unlock()
		return ErrNotFound
	}
	wasPaused := j.paused
	j.paused = false
	j.pausedUntil = time.Time{}
	h.d.mu.Unlock()

	if wasPaused {
		h.d.publishJob(events.JobResumed, j, "")
		h.d.log.Info("job resumed", logx.String("job", j.name))
	}
	return nil
}

func (d *Dispatcher) pause(id string, until time.Time) error {
	d.mu.Lock()
	j := d.byID[id]
	if j == nil {
		d.mu.Unlock()
		return ErrNotFound
	}
	j.paused = true
	j.pausedUntil = until
	d.mu.Unlock()

	d.publishJob(events.JobPaused, j, "")
	fields := []logx.Field{logx.String("job", j.name)}
	if !until.IsZero() {
		fields = append(fields, logx.Time("until", until))
	}
	d.log.Info("job paused", fields...)
	return nil
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func spreadJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return time.Duration(rng.Int63n(int64(max)))
}
