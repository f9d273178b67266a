package record

import (
	"context"
	"sync"
	"time"

	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// InMemoryStore keeps records for tests and throwaway deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[models.Key]models.VerificationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[models.Key]models.VerificationRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, key models.Key) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[key]; ok {
		return &r, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Upsert(_ context.Context, record models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key()] = record
	return nil
}

func (s *InMemoryStore) SetVerified(_ context.Context, key models.Key, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = models.NewUnverifiedRecord(key, at)
	}
	r.Verified = true
	s.records[key] = r
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *InMemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{Total: int64(len(s.records))}
	for _, r := range s.records {
		if r.Verified {
			c.Verified++
		}
	}
	return c, nil
}
