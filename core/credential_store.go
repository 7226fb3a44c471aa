package core

import (
	"context"
	"fmt"
	"sync"
)

type MemoryCredentialStore struct {
	mu      sync.RWMutex
	entries map[CredentialKey]TokenMaterial
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{entries: map[CredentialKey]TokenMaterial{}}
}

func (s *MemoryCredentialStore) Store(_ context.Context, key CredentialKey, tokens TokenMaterial) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	key = NewCredentialKey(key.UserID, key.ServiceName)
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = tokens.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) Load(_ context.Context, key CredentialKey) (TokenMaterial, bool, error) {
	if s == nil {
		return TokenMaterial{}, false, fmt.Errorf("core: credential store is not configured")
	}
	key = NewCredentialKey(key.UserID, key.ServiceName)
	s.mu.RLock()
	tokens, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return TokenMaterial{}, false, nil
	}
	return tokens.Clone(), true, nil
}

func (s *MemoryCredentialStore) Clear(_ context.Context, key CredentialKey) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	key = NewCredentialKey(key.UserID, key.ServiceName)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
