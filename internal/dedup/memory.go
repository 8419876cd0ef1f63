package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[claimKey]time.Time
	now  func() time.Time
}

type claimKey struct {
	tenantID string
	eventID  string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[claimKey]time.Time), now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) Claim(_ context.Context, tenantID, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	key := claimKey{tenantID: tenantID, eventID: eventID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = s.now()
	return true, nil
}

func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, seenAt := range s.seen {
		if seenAt.Before(cutoff) {
			delete(s.seen, key)
			removed++
		}
	}
	return removed, nil
}
