// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time and deferred execution for testability.
type Clock interface {
	Now() time.Time

	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call
	// already ran or was already stopped.
	Stop() bool
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Storage is a string key/value store used to persist module state.
type Storage interface {
	// Get retrieves a value. Returns "", false, nil if the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value, replacing any previous one.
	Set(ctx context.Context, key, value string) error
}

// KeyLister is implemented by storages that can enumerate their keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Deleter is implemented by storages that can remove keys.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}
