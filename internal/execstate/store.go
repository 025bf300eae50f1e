// Package execstate implements the process-wide execution gate (kill switch).
//
// The effective state is the runtime override when present, otherwise the
// configured default. The override lives in a shared store so that the
// guardrail validator and any external control surface observe the same
// value with read-after-write visibility.
package execstate

import "sync"

// OverrideStore persists the runtime override. The store is the source of
// truth; callers must not cache its value.
type OverrideStore interface {
	// Get returns (value, present, error). present=false means no override.
	Get() (bool, bool, error)

	// Set writes the override
	Set(enabled bool) error

	// Clear removes the override, restoring the configured default
	Clear() error
}

// MemoryStore is an in-memory OverrideStore for tests and single-process
// deployments without shared infrastructure.
type MemoryStore struct {
	mu      sync.RWMutex
	value   bool
	present bool
	err     error // When set, all operations fail with this error
}

// NewMemoryStore creates an empty in-memory override store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes all subsequent operations return err (nil restores normal operation)
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Get implements OverrideStore
func (s *MemoryStore) Get() (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return false, false, s.err
	}
	return s.value, s.present, nil
}

// Set implements OverrideStore
func (s *MemoryStore) Set(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.value = enabled
	s.present = true
	return nil
}

// Clear implements OverrideStore
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.present = false
	return nil
}
