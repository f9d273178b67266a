package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps events in process; used when no audit stream is
// configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// NewBoundedInMemoryStore keeps only the newest limit events.
func NewBoundedInMemoryStore(limit int) *InMemoryStore {
	return &InMemoryStore{limit: limit}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

// ListByUser returns the events of one member of one chat, oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, chatID, userID int64) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ChatID == chatID && e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns at most limit of the newest events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]Event{}, s.events[start:]...), nil
}
