// Package memory provides an ephemeral, thread-safe, in-memory implementation
// of kvstore.KV. It is suitable for development, testing, or any scenario
// where workflows do not need to outlive the process.
//
// Values are kept in a sync.Map keyed by string. Stored and returned byte
// slices are copied so callers can never alias the stored document.
package memory

import (
	"context"
	"sync"
)

// Store is an in-memory implementation of kvstore.KV.
type Store struct {
	values sync.Map // Key: string, Value: []byte
}

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{}
}

// Get retrieves the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v.([]byte)...), true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.values.Store(key, append([]byte(nil), value...))
	return nil
}
