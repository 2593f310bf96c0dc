// Package kvstore is the durable key-value layer behind chat history.
package kvstore

import (
	"errors"
	"fmt"
)

// Store persists opaque values by key.
type Store interface {
	// Get returns the value for key. found is false when the key was never
	// written.
	Get(key string) (value []byte, found bool, err error)
	// Put writes every entry atomically: either all keys are updated or none.
	Put(entries map[string][]byte) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Open creates the Store selected by backend inside dataDir. An empty
// backend selects the file store.
func Open(backend Backend, dataDir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dataDir)
	case BackendSQLite:
		return NewSQLiteStore(dataDir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
