package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication matches every *AuthenticationError.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrNotInRun is returned by ProcessItem for an item the run did not pick.
	ErrNotInRun = errors.New("item is not part of this run")
	// ErrNotQueued is returned by ProcessItem for an item that is not waiting.
	ErrNotQueued = errors.New("item is not queued")
	// ErrRunCompleted is returned by ProcessItem after Complete.
	ErrRunCompleted = errors.New("run is already completed")
)

// AuthenticationError aborts a run before any item is touched.
type AuthenticationError struct {
	Status int
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := "Could not authenticate. Please check the url and authentication details"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// LookupError is a per-item failure to resolve a serial to a remote UUID.
type LookupError struct {
	Serial   string
	Status   int
	NotFound bool
	Err      error
}

func (e *LookupError) Error() string {
	switch {
	case e.Err != nil:
		return "Lookup failed (no response)"
	case e.NotFound:
		return "Lookup failed (no matching device)"
	default:
		return fmt.Sprintf("Lookup failed (HTTP %d)", e.Status)
	}
}

func (e *LookupError) Unwrap() error { return e.Err }

// DeleteError is a per-item delete failure: either a non-200 response or no
// response at all.
type DeleteError struct {
	Status int
	Err    error
}

func (e *DeleteError) Error() string {
	if e.Err != nil {
		return "Network error while deleting"
	}
	return fmt.Sprintf("HTTP %d while deleting", e.Status)
}

func (e *DeleteError) Unwrap() error { return e.Err }
