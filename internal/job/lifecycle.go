// Package job models a single remotely executed job: its lifecycle state, its
// launch record, the status poller, the incremental log cache and the facade
// that composes them.
package job

import (
	"strings"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

var statesByName = map[string]State{
	"queued":    StateQueued,
	"running":   StateRunning,
	"completed": StateCompleted,
	"error":     StateError,
	"cancelled": StateCancelled,
}

// ParseState maps a status string reported for jobID onto a State, ignoring case.
// Any other string is an UnknownState error; it is never coerced.
func ParseState(jobID, raw string) (State, error) {
	s, ok := statesByName[strings.ToLower(raw)]
	if !ok {
		return "", apperrors.UnknownState(jobID, raw)
	}
	return s, nil
}

// IsTerminal reports whether s ends polling.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// IsFinished reports whether s is completed, error or cancelled.
func IsFinished(s State) bool {
	return s.IsTerminal()
}

func (s State) String() string {
	return string(s)
}
