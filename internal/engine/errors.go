package engine

import "errors"

var (
	ErrStopped   = errors.New("engine stopped")
	ErrStopping  = errors.New("engine stopping")
	ErrQueueFull = errors.New("engine queue full")
)
