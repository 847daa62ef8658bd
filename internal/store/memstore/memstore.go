// Package memstore is an in-process Store used in standalone mode and in
// tests. Tests can inject per-operation faults to exercise degradation
// paths.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"
)

type Store struct {
	mu     sync.RWMutex
	values map[string][]byte

	gets    atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64

	// FailWith, when non-nil, is returned from every operation. Tests use
	// it to simulate a slow or unreachable backend.
	failMu   sync.RWMutex
	failWith error
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	if err := s.currentFault(ctx); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.sets.Add(1)
	if err := s.currentFault(ctx); err != nil {
		return err
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	s.mu.Lock()
	s.values[key] = copied
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	if err := s.currentFault(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// FailWith makes every subsequent operation return err. Pass nil to heal.
func (s *Store) FailWith(err error) {
	s.failMu.Lock()
	s.failWith = err
	s.failMu.Unlock()
}

func (s *Store) currentFault(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.failWith
}

// Calls reports operation counts (gets, sets, deletes) for instrumented tests.
func (s *Store) Calls() (int64, int64, int64) {
	return s.gets.Load(), s.sets.Load(), s.deletes.Load()
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
