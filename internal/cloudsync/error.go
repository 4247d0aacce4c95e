package cloudsync

import "fmt"

// Error wraps a provider failure with the provider's name and the phase
// that failed.
type Error struct {
	Provider string
	Phase    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cloudsync: %s %s: %v", e.Provider, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
