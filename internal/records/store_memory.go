package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	bySession map[string]CallRecord

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySession: make(map[string]CallRecord),
		clock:     time.Now,
	}
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, rec CallRecord) (CallRecord, bool, error) {
	if rec.SessionID == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySession[rec.SessionID]; ok {
		return existing, false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	s.bySession[rec.SessionID] = rec
	return rec, true, nil
}

func (s *MemoryStore) FindBySession(ctx context.Context, sessionID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bySession[sessionID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}
