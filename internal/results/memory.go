package results

import (
	"context"
	"sync"
	"time"

	"github.com/visionrelay/visionrelay/internal/models"
)

type entry struct {
	resp      models.ClientResponse
	expiresAt time.Time
}

// MemoryStore is an in-memory result store with TTL expiry.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]entry
	ttl    time.Duration
	stopCh chan struct{}
}

// NewMemory creates an in-memory store expiring entries after ttl.
func NewMemory(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &MemoryStore{
		items:  make(map[string]entry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go s.cleanup()
	return s
}

func (s *MemoryStore) Put(ctx context.Context, requestID string, resp models.ClientResponse) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[requestID] = entry{
		resp:      resp,
		expiresAt: time.Now().Add(s.ttl),
	}
}

func (s *MemoryStore) Get(ctx context.Context, requestID string) (models.ClientResponse, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[requestID]
	if !ok || time.Now().After(e.expiresAt) {
		return models.ClientResponse{}, false
	}
	return e.resp, true
}

// Stop terminates the background cleanup goroutine.
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.items {
		if now.After(e.expiresAt) {
			delete(s.items, id)
		}
	}
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
