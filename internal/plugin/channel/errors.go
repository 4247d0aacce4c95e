package channel

import (
	"errors"
	"fmt"
	"time"
)

// Channel errors.
var (
	// ErrClosed is returned when using a closed channel.
	ErrClosed = errors.New("channel is closed")

	// ErrNotOpen is returned when calling into a channel before Open.
	ErrNotOpen = errors.New("channel is not open")

	// ErrAlreadyOpen is returned when Open is called twice.
	ErrAlreadyOpen = errors.New("channel is already open")
)

// LoadTimeoutError reports that the sandboxed context never signaled ready
// within the load timeout. The plugin must not be treated as loaded.
type LoadTimeoutError struct {
	PluginID string
	Timeout  time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("plugin %s: sandbox not ready after %s", e.PluginID, e.Timeout)
}

// ExecutionError reports a failure while injecting or running the plugin's
// script. The load is aborted.
type ExecutionError struct {
	PluginID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s: script execution failed: %v", e.PluginID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RPCError reports that a defined capability threw or rejected.
type RPCError struct {
	PluginID string
	Method   string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.PluginID, e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }
