package kvstore

import (
	"context"
	"fmt"
)

// MaxKeyLen is the longest namespace or key accepted by any backend.
const MaxKeyLen = 15

// Store is a namespaced blob store with staged writes.
//
// Set stages a value; it becomes durable only after Commit. Get observes
// staged values, so a caller reads its own writes before committing.
// Commit drops the staged values even when it fails.
//
// Stores carry no cross-operation locking of their own beyond what keeps a
// single call consistent. Callers that need a read-compare-write sequence to
// be atomic with respect to other persistence clients hold a Lock.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Commit(ctx context.Context) error
	Close() error
}

func validateKey(namespace, key string) error {
	if namespace == "" || key == "" || len(namespace) > MaxKeyLen || len(key) > MaxKeyLen {
		return fmt.Errorf("%w: %q/%q", ErrInvalidKey, namespace, key)
	}
	return nil
}

type stagedKey struct {
	namespace string
	key       string
}
