package store

import (
	"context"
	"sort"
	"sync"

	"accredo/internal/accreditation/models"
	id "accredo/pkg/domain"
	"accredo/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in memory. Dev default and test double; the
// CAS discipline is identical to the durable backends.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.AccreditationID]*models.Session
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.AccreditationID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID id.AccreditationID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

func (s *InMemoryStore) CompareAndSwap(_ context.Context, sessionID id.AccreditationID, expectedVersion int64, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrVersionConflict
	}
	next := session.Clone()
	next.Version = expectedVersion + 1
	s.sessions[sessionID] = next
	// Reflect the committed version back to the caller's snapshot.
	session.Version = next.Version
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter *models.ListFilter) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if filter.Matches(session) {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
