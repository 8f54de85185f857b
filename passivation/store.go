// Package passivation defines the opaque blob store consumed by the
// session scope's passivation feature, plus ready-made implementations.
package passivation

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no blob exists for a session identifier.
var ErrNotFound = errors.New("no passivated state for session")

// Store persists opaque byte blobs keyed by session identifier. The
// container never interprets the blob beyond round-tripping it.
type Store interface {
	Save(ctx context.Context, sessionID string, blob []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is an in-process Store for tests and single-node use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.blobs[sessionID] = cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, sessionID)
	return nil
}
