package secret

import (
	"fmt"
	"sync"

	"chartdeck.aero/cli/internal/core/domain"
)

// MemoryStore is an in-memory secret store for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string

	// FailWrites makes Save and Delete return a SecretError, for exercising
	// the log-and-swallow persistence policy.
	FailWrites bool
}

// NewMemoryStore creates an empty in-memory secret store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

// Save stores value under key.
func (s *MemoryStore) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return &domain.SecretError{Op: "save", Err: fmt.Errorf("store unavailable")}
	}
	s.secrets[key] = value
	return nil
}

// Load returns the value under key, or domain.ErrSecretNotFound.
func (s *MemoryStore) Load(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[key]
	if !ok {
		return "", fmt.Errorf("load %q: %w", key, domain.ErrSecretNotFound)
	}
	return value, nil
}

// Delete removes key. Deleting an absent key is a success.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return &domain.SecretError{Op: "delete", Err: fmt.Errorf("store unavailable")}
	}
	delete(s.secrets, key)
	return nil
}
