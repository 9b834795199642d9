package pool

import "errors"

// Errors surfaced by GetConnection.
var (
	ErrNotRunning            = errors.New("pool: async_run was never started")
	ErrCancelled             = errors.New("pool: cancelled")
	ErrNoConnectionAvailable = errors.New("pool: no connection became available before the deadline")
)
