// Package flagstore caches the flag values last received for a context so
// they are available before the first network response.
//
// Entries are keyed by environment and by the context hash of the evaluated
// context, so two structurally equal contexts share an entry. Only flag
// state is stored here; analytics events are never persisted.
package flagstore

import (
	"errors"
	"time"
)

// Store persists cached flag payloads.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data for a context. Overwrites an existing entry and
	// marks it as the most recently used.
	Save(env, contextHash string, data []byte) error

	// Load retrieves an entry.
	// Returns ErrNotFound if the entry doesn't exist.
	Load(env, contextHash string) ([]byte, error)

	// List returns all entries of an environment, least recently saved first.
	// Returns an empty slice (not error) if there are none.
	List(env string) ([]Info, error)

	// Delete removes an entry.
	// Returns nil if the entry doesn't exist.
	Delete(env, contextHash string) error

	// Prune removes all but the keep most recently saved entries of env.
	Prune(env string, keep int) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the payload.
type Info struct {
	Env         string
	ContextHash string
	Sequence    int
	Timestamp   time.Time
	Size        int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("flag cache entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("flag store closed")
)
