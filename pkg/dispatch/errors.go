package dispatch

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running dispatcher.
	ErrAlreadyRunning = errors.New("dispatcher already running")

	// ErrNotFound is returned when a named job is not registered.
	ErrNotFound = errors.New("job not found")

	ErrNoSchedule  = errors.New("job schedule is required")
	ErrNilCallable = errors.New("job callable is required")
)
