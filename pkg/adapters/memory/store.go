package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.SessionKey]*domain.Session
	mu   sync.RWMutex
}

var _ ports.SessionStore = (*Store)(nil)

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.SessionKey]*domain.Session),
	}
}

// Save persists a deep copy of the session, similar to serialization.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	if err := session.Key.Validate(); err != nil {
		return err
	}
	copied := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[session.Key] = copied
	return nil
}

// Load returns a copy so callers can't mutate the stored session by pointer.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns stored session keys matching the filter, ordered by encoded key.
func (s *Store) List(ctx context.Context, filter ports.ListFilter) ([]domain.SessionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.SessionKey, 0, len(s.data))
	for k := range s.data {
		if filter.Match(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Encode() < keys[j].Encode() })
	return keys, nil
}
