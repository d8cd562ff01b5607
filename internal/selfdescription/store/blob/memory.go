package blob

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"sdcatalog/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed blob store for tests and STORE=memory runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryStore) Store(_ context.Context, hash string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; ok {
		return fmt.Errorf("store blob %s: %w", hash, sentinel.ErrAlreadyExists)
	}
	s.blobs[hash] = bytes.Clone(content)
	return nil
}

func (s *InMemoryStore) Read(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("read blob %s: %w", hash, sentinel.ErrNotFound)
	}
	return bytes.Clone(content), nil
}

func (s *InMemoryStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		return fmt.Errorf("delete blob %s: %w", hash, sentinel.ErrNotFound)
	}
	delete(s.blobs, hash)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}
