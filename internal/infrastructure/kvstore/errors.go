package kvstore

import "errors"

// Sentinel errors for key-value store operations.
//
//	if errors.Is(err, kvstore.ErrNotFound) {
//	    // first boot, nothing persisted yet
//	}
var (
	// ErrNotFound is returned by Get when no value exists for the namespace/key.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrInvalidKey is returned for an empty namespace or key, or one longer than MaxKeyLen.
	ErrInvalidKey = errors.New("kvstore: invalid namespace or key")

	// ErrLockTimeout is returned when the persistence lock cannot be acquired in time.
	ErrLockTimeout = errors.New("kvstore: lock timeout")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("kvstore: store closed")
)
