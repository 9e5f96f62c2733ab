package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps presence in process. It suits single-instance
// deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[int64]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{expires: make(map[int64]time.Time), now: now}
}

// Touch implements Store.
func (s *MemoryStore) Touch(_ context.Context, userID int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	exp, ok := s.expires[userID]
	wasOnline := ok && now.Before(exp)
	s.expires[userID] = now.Add(ttl)
	return !wasOnline, nil
}

// IsOnline implements Store.
func (s *MemoryStore) IsOnline(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[userID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.expires, userID)
		return false, nil
	}
	return true, nil
}
