package manager

import "errors"

// Sentinel errors returned by the manager.
var (
	// ErrNotRunning is returned when a message is posted before Start or after Close.
	ErrNotRunning = errors.New("manager: not running")

	// ErrAlreadyRunning is returned by a second call to Start.
	ErrAlreadyRunning = errors.New("manager: already running")

	// ErrStatusBusy is returned when the status snapshot lock cannot be taken in time.
	// Callers treat it as "status temporarily unavailable".
	ErrStatusBusy = errors.New("manager: status snapshot busy")

	// ErrInvalidProfile is returned when a persisted profile blob has the wrong size.
	ErrInvalidProfile = errors.New("manager: invalid profile blob")

	// ErrNoStore is returned by New when no persistence store is configured.
	ErrNoStore = errors.New("manager: no persistence store")
)
