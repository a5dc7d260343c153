package dispatch

import (
	"sync/atomic"
	"time"

	"cronner/pkg/rule"
)

// Snapshot returns a point-in-time view of the dispatcher and its jobs,
// in registration order. NextDue is computed against the clock's current
// instant, outside the lock.
func (d *Dispatcher) Snapshot() Snapshot {
	type pending struct {
		info  JobInfo
		sched rule.Schedule
		last  time.Time
	}

	d.mu.Lock()
	cfg := d.cfg
	running := d.running
	jobs := make([]pending, 0, len(d.jobs))
	for _, j := range d.jobs {
		jobs = append(jobs, pending{info: d.infoLocked(j, time.Time{}), sched: j.sched, last: j.lastFired})
	}
	d.mu.Unlock()

	now := d.clock.Now().In(d.loc)
	infos := make([]JobInfo, 0, len(jobs))
	for _, p := range jobs {
		p.info.NextDue = p.sched.Next(now, p.last)
		infos = append(infos, p.info)
	}

	return Snapshot{
		Running:      running,
		TickInterval: cfg.TickInterval,
		Mode:         cfg.Mode,
		Timezone:     d.loc.String(),
		Ticks:        atomic.LoadUint64(&d.ticks),
		Fires:        atomic.LoadUint64(&d.fires),
		Skips:        atomic.LoadUint64(&d.skips),
		Drops:        atomic.LoadUint64(&d.drops),
		Failures:     atomic.LoadUint64(&d.failures),
		GateVetoes:   atomic.LoadUint64(&d.gateVetoes),
		Jobs:         infos,
	}
}

// Job returns the view of one job by name.
func (d *Dispatcher) Job(name string) (JobInfo, error) {
	d.mu.Lock()
	j := d.byName[name]
	if j == nil {
		d.mu.Unlock()
		return JobInfo{}, ErrNotFound
	}
	info := d.infoLocked(j, time.Time{})
	sched, last := j.sched, j.lastFired
	d.mu.Unlock()

	info.NextDue = sched.Next(d.clock.Now().In(d.loc), last)
	return info, nil
}

func (d *Dispatcher) infoLocked(j *job, nextDue time.Time) JobInfo {
	return JobInfo{
		ID:          j.id,
		Name:        j.name,
		Schedule:    j.sched.String(),
		State:       j.state,
		StateName:   j.state.String(),
		Paused:      j.paused,
		PausedUntil: j.pausedUntil,
		LastFired:   j.lastFired,
		NextDue:     nextDue,
		Fires:       j.fires,
		Failures:    j.failures,
		Meta:        copyMeta(j.meta),
	}
}
