// Package memory implements db.Store in process memory.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/docdex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps values in a map. Batches apply atomically.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Get returns a copy of the value at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// Apply writes a batch under one lock.
func (s *Store) Apply(ctx context.Context, b db.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range b.Dels {
		delete(s.data, k)
	}
	for _, e := range b.Sets {
		s.data[e.Key] = slices.Clone(e.Value)
	}
	return nil
}

// Scan lists keys starting with prefix in ascending order.
func (s *Store) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }
