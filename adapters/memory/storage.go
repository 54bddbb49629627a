// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/statekit/ports"
)

// Storage is an in-memory implementation of ports.Storage.
type Storage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewStorage creates a new in-memory storage.
func NewStorage() *Storage {
	return &Storage{data: make(map[string]string)}
}

// Get retrieves a value by key.
func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores a value by key.
func (s *Storage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes a key. No error if the key doesn't exist.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns all keys in sorted order.
func (s *Storage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var (
	_ ports.Storage   = (*Storage)(nil)
	_ ports.KeyLister = (*Storage)(nil)
	_ ports.Deleter   = (*Storage)(nil)
)
