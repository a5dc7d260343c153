package dispatch

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"cronner/internal/engine"
	"cronner/pkg/rule"
)

// Callable is the unit of work a job invokes. The context is the
// run-lifetime context handed to Start (or the engine's, in pool mode);
// it is canceled at process shutdown, never by Stop. No timeout is
// imposed: a callable that never returns leaves its job Running forever
// and out of future evaluation.
type Callable func(ctx context.Context) error

// Mode selects how due jobs are invoked.
type Mode string

const (
	// ModeInline runs callables synchronously on the tick loop; a slow
	// callable blocks subsequent ticks.
	ModeInline Mode = "inline"
	// ModePool hands fires to the worker pool; a full queue drops the
	// fire (the job stays Idle and its cadence is not consumed).
	ModePool Mode = "pool"
)

// Executor accepts fires in pool mode. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

// GateFunc is an optional final veto consulted after a job is found due.
// Returning false suppresses the fire without consuming the cadence.
// It runs on the tick loop: keep it fast and non-blocking.
type GateFunc func(JobInfo) bool

type Config struct {
	// TickInterval is the poll period. Default 1s. Calendar constraints
	// have second granularity; ticks coarser than 1s observe due instants
	// late (or, for second-constrained rules, may miss the window).
	TickInterval time.Duration

	// Mode defaults to ModePool when an Executor is supplied, ModeInline
	// otherwise.
	Mode Mode

	// Timezone is the IANA location calendar constraints are evaluated
	// in. Empty means the process-local zone.
	Timezone string

	// Clock abstracts wall time; nil means the real clock.
	Clock clockwork.Clock

	// Gate, when set, is consulted for every due job.
	Gate GateFunc
}

// State is a job's invocation state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "state(?)"
	}
}

// JobSpec describes one registration.
type JobSpec struct {
	// Name is the job's unique identity; adding an existing name replaces
	// that job. Empty means an auto-generated "job-<id>" name.
	Name string

	// Schedule decides when the job fires. Required.
	Schedule rule.Schedule

	// Run is the callable. Required.
	Run Callable

	// Meta labels are carried into events and snapshots.
	Meta map[string]string

	// Spread withholds the first fire by a pseudo-random delay in
	// [0, Spread), de-synchronizing herds of identical intervals.
	Spread time.Duration
}

// JobInfo is a point-in-time view of one job.
type JobInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Schedule    string            `json:"schedule"`
	State       State             `json:"-"`
	StateName   string            `json:"state"`
	Paused      bool              `json:"paused,omitempty"`
	PausedUntil time.Time         `json:"paused_until"`
	LastFired   time.Time         `json:"last_fired"`
	NextDue     time.Time         `json:"next_due"`
	Fires       uint64            `json:"fires"`
	Failures    uint64            `json:"failures"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Snapshot is a point-in-time view of the dispatcher.
type Snapshot struct {
	Running      bool          `json:"running"`
	TickInterval time.Duration `json:"tick_interval"`
	Mode         Mode          `json:"mode"`
	Timezone     string        `json:"timezone"`

	Ticks      uint64 `json:"ticks"`
	Fires      uint64 `json:"fires"`
	Skips      uint64 `json:"skips"`
	Drops      uint64 `json:"drops"`
	Failures   uint64 `json:"failures"`
	GateVetoes uint64 `json:"gate_vetoes"`

	Jobs []JobInfo `json:"jobs"`
}
