// Package engine executes dispatched job invocations on a bounded worker
// pool. It deliberately does nothing clever: no retries, no timeouts, no
// catch-up. A fire either runs to completion or is refused at submit time
// (queue full); refusals are the caller's signal to drop the fire.
package engine

import (
	"context"
	"time"
)

// Task is one invocation handed to the pool.
type Task struct {
	// ID identifies this invocation in logs; the caller assigns it.
	ID string
	// Job is the owning job's name.
	Job string

	// Run does the work. Required.
	Run func(ctx context.Context) error

	// Done receives Run's result (a recovered panic is delivered as an
	// error). Called exactly once per task: on the worker goroutine after
	// Run returns, or with ErrStopped when the pool shuts down before the
	// task ever started. Optional.
	Done func(err error)
}

type Config struct {
	Workers   int // pool size; default 4
	QueueSize int // pending fires; default 64
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Snapshot is a point-in-time view of the pool.
type Snapshot struct {
	Running  bool   `json:"running"`
	Workers  int    `json:"workers"`
	QueueLen int    `json:"queue_len"`
	QueueCap int    `json:"queue_cap"`
	InFlight int    `json:"in_flight"`
	Dropped  uint64 `json:"dropped"`
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
}
