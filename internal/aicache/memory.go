package aicache

import (
	"context"
	"sync"
	"time"

	"github.com/thebtf/scribe/pkg/models"
)

type memoryEntry struct {
	resp      models.BatchResponse
	expiresAt time.Time
}

// MemoryStore is the default process-local cache store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time // overridable in tests
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store. Expired entries are removed lazily.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*models.BatchResponse, error) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a Set may have raced the expiry.
		if cur, still := s.entries[fingerprint]; still && s.now().After(cur.expiresAt) {
			delete(s.entries, fingerprint)
		}
		s.mu.Unlock()
		return nil, nil
	}
	resp := entry.resp
	return &resp, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, fingerprint string, resp models.BatchResponse, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[fingerprint] = memoryEntry{resp: resp, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	delete(s.entries, fingerprint)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
