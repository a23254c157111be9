package model

import (
	"fmt"
	"strconv"
	"strings"
)

// StateKind enumerates the per-item states of a batch run.
type StateKind int

const (
	// StatePending is the initial state of an item that has not been part of a run.
	StatePending StateKind = iota
	StateQueued
	StateRunning
	StateSucceeded
	StateFailed
)

var stateNames = map[StateKind]string{
	StatePending:   "pending",
	StateQueued:    "queued",
	StateRunning:   "running",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

func (k StateKind) String() string {
	if s, ok := stateNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k StateKind) MarshalText() ([]byte, error) {
	if _, ok := stateNames[k]; !ok {
		return nil, fmt.Errorf("unknown state kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name written by MarshalText.
func (k *StateKind) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for kind, n := range stateNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", name)
}

// State is the tagged state of a target item. Retry is only meaningful for
// StateQueued: a non-zero value marks the Retried(n) sub-state.
type State struct {
	Kind  StateKind `json:"kind"`
	Retry int       `json:"retry,omitempty"`
}

// Pending, Queued, Running, Succeeded and Failed are the untagged states.
var (
	Pending   = State{Kind: StatePending}
	Queued    = State{Kind: StateQueued}
	Running   = State{Kind: StateRunning}
	Succeeded = State{Kind: StateSucceeded}
	Failed    = State{Kind: StateFailed}
)

// Retried returns the queued sub-state for the n-th retry of an item.
func Retried(n int) State {
	return State{Kind: StateQueued, Retry: n}
}

// IsRetried reports whether s is the Retried(n) sub-state.
func (s State) IsRetried() bool {
	return s.Kind == StateQueued && s.Retry > 0
}

// Terminal reports whether s ends an item's pass through a run.
func (s State) Terminal() bool {
	return s.Kind == StateSucceeded || s.Kind == StateFailed
}

// String renders the state for display, e.g. "Queued" or "Retried (2)".
func (s State) String() string {
	switch s.Kind {
	case StatePending:
		return "Pending"
	case StateQueued:
		if s.Retry > 0 {
			return "Retried (" + strconv.Itoa(s.Retry) + ")"
		}
		return "Queued"
	case StateRunning:
		return "Running"
	case StateSucceeded:
		return "Success"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}
