package execstate

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	overrideBucket = "execution"
	overrideKey    = "execution_override"
)

// BoltStore persists the runtime override in a bbolt file. The file can live
// on shared storage so that multiple processes observe the same override.
// No TTL: the override persists until explicitly changed.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the override store at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open override store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(overrideBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create override bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get implements OverrideStore
func (s *BoltStore) Get() (bool, bool, error) {
	var value, present bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(overrideBucket)).Get([]byte(overrideKey))
		if raw == nil {
			return nil
		}
		present = true
		value = string(raw) == "true"
		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to read override: %w", err)
	}
	return value, present, nil
}

// Set implements OverrideStore
func (s *BoltStore) Set(enabled bool) error {
	raw := "false"
	if enabled {
		raw = "true"
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(overrideBucket)).Put([]byte(overrideKey), []byte(raw))
	})
	if err != nil {
		return fmt.Errorf("failed to write override: %w", err)
	}
	return nil
}

// Clear implements OverrideStore
func (s *BoltStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(overrideBucket)).Delete([]byte(overrideKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	return nil
}

// Close closes the underlying bbolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
