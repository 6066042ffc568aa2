package syncer

import (
	"context"
	"errors"
	"time"

	"notesync/internal/remote"
	"notesync/internal/services"
)

// ErrLoginFailed marks a session that could not authenticate.
var ErrLoginFailed = errors.New("login failed")

// State is the terminal state of a sync session.
type State int

const (
	StateSuccess State = iota
	StateNetworkError
	StateInternalError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateNetworkError:
		return "network_error"
	case StateInternalError:
		return "internal_error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Stats counts what a session changed on each side.
type Stats struct {
	RemoteCreates int `json:"remote_creates"`
	RemoteUpdates int `json:"remote_updates"`
	RemoteDeletes int `json:"remote_deletes"`
	RemoteMoves   int `json:"remote_moves"`
	LocalCreates  int `json:"local_creates"`
	LocalUpdates  int `json:"local_updates"`
	LocalDeletes  int `json:"local_deletes"`
	Deferred      int `json:"deferred"`
	FetchedLists  int `json:"fetched_lists"`
	SkippedLists  int `json:"skipped_lists"`
}

// RemoteChanges returns the number of remote mutations.
func (s Stats) RemoteChanges() int {
	return s.RemoteCreates + s.RemoteUpdates + s.RemoteDeletes + s.RemoteMoves
}

// LocalChanges returns the number of local mutations.
func (s Stats) LocalChanges() int {
	return s.LocalCreates + s.LocalUpdates + s.LocalDeletes
}

// Result is the outcome of one session.
type Result struct {
	State      State
	Err        error
	Stats      Stats
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the session ran.
func (r Result) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Classify maps a session error to its terminal state.
func Classify(err error) State {
	switch {
	case err == nil:
		return StateSuccess
	case errors.Is(err, services.ErrCancelled), errors.Is(err, context.Canceled):
		return StateCancelled
	case errors.Is(err, ErrLoginFailed), remote.IsRetriable(err):
		return StateNetworkError
	default:
		return StateInternalError
	}
}
