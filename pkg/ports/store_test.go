package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/stretchr/testify/assert"
)

// MockStore is a map backed SessionStore used to exercise the contract itself.
type MockStore struct {
	mu   sync.Mutex
	data map[domain.SessionKey]*domain.Session
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[domain.SessionKey]*domain.Session)}
}

func (m *MockStore) Save(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.Key] = s.Clone()
	return nil
}

func (m *MockStore) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MockStore) Delete(ctx context.Context, key domain.SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockStore) List(ctx context.Context, filter ports.ListFilter) ([]domain.SessionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []domain.SessionKey
	for k := range m.data {
		if filter.Match(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestMockStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, NewMockStore())
}

func TestListFilter_Match(t *testing.T) {
	key := domain.NewSessionKey("weather", "alice", "s1")

	assert.True(t, ports.ListFilter{}.Match(key))
	assert.True(t, ports.ListFilter{AppName: "weather"}.Match(key))
	assert.False(t, ports.ListFilter{AppName: "novel"}.Match(key))
	assert.False(t, ports.ListFilter{AppName: "weather", UserID: "bob"}.Match(key))
}
