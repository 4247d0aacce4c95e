package lua

import "errors"

// Runtime errors.
var (
	// ErrStateClosed is returned when using a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutorClosed is returned when using a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrQueueFull is returned when an async call cannot be buffered.
	ErrQueueFull = errors.New("lua executor queue full")
)
