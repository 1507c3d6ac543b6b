package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get for keys that have never been written
	// or have been deleted.
	ErrNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by Put when a write would push the store
	// past its configured byte budget.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is a single global keyed byte store. The persistence layer is its
// only writer; reads happen once at startup. No guarantees beyond last
// write wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	Put(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error

	// Clear removes every key in the store.
	Clear(ctx context.Context) error
}
