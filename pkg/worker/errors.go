package worker

import "errors"

// Errors returned by pool lifecycle and submission methods.
var (
	ErrPoolNotStarted     = errors.New("pool not started")
	ErrPoolAlreadyStarted = errors.New("pool already started")
	ErrPoolStopped        = errors.New("pool stopped")
	ErrNilProcessor       = errors.New("nil processor")

	// ErrQueueFull is returned by Submit when the work queue is at
	// capacity; callers decide whether to retry or shed the work.
	ErrQueueFull = errors.New("work queue at capacity")

	// ErrStopTimeout is returned by Stop when workers did not drain
	// before the deadline.
	ErrStopTimeout = errors.New("workers did not stop before deadline")
)
