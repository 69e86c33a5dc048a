package storage

import (
	"context"
	"errors"
)

// ErrNotConfigured indicates the backing client was not initialised.
var ErrNotConfigured = errors.New("storage: backend not configured")

// AlertState is the record persisted between runs.
// WasAbove reports whether the last observed rate was at or above the threshold.
type AlertState struct {
	WasAbove bool `json:"was_above"`
}

// DefaultState is used when nothing was persisted yet or the stored value cannot be read.
func DefaultState() AlertState {
	return AlertState{WasAbove: false}
}

// StateStore loads and saves the alert state.
//
// Load never fails: read or decode errors are logged by the implementation
// and the default state is returned instead.
type StateStore interface {
	Load(ctx context.Context) AlertState
	Save(ctx context.Context, state AlertState) error
	Close() error
}

// Locker guards the read-decide-write sequence against overlapping runs.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), acquired bool, err error)
}
