package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock may be held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring one turn per session at a time.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Active locks keyed by encoded session key

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	var session *domain.Session
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		session, err = m.store.Load(ctx, key)
		return err
	})
	return session, err
}

// LoadOrCreate loads a session, or creates and persists a new one seeded with initial.
func (m *Manager) LoadOrCreate(ctx context.Context, key domain.SessionKey, initial map[string]any) (*domain.Session, error) {
	var session *domain.Session
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var (
			created bool
			err     error
		)
		session, created, err = m.loadOrNew(ctx, key, initial)
		if err != nil || !created {
			return err
		}
		// Persist immediately to reserve the key.
		if err := m.store.Save(ctx, session); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return session, err
}

func (m *Manager) loadOrNew(ctx context.Context, key domain.SessionKey, initial map[string]any) (*domain.Session, bool, error) {
	session, err := m.store.Load(ctx, key)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return domain.NewSession(key, initial), true, nil
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, session *domain.Session) error {
	return m.WithLock(ctx, session.Key, func(ctx context.Context) error {
		return m.store.Save(ctx, session)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context, filter ports.ListFilter) ([]domain.SessionKey, error) {
	return m.store.List(ctx, filter)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Turn runs fn on the session for key while holding the session lock.
// The session is loaded (or created with initial) first and always saved
// afterwards, even when fn fails or ctx is cancelled: mutations already
// applied during the turn are kept. fn's context carries the key
// (see KeyFromContext).
func (m *Manager) Turn(ctx context.Context, key domain.SessionKey, initial map[string]any, fn func(context.Context, *domain.Session) error) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		ctx = ContextWithKey(ctx, key)
		session, _, err := m.loadOrNew(ctx, key, initial)
		if err != nil {
			return err
		}

		fnErr := fn(ctx, session)

		if err := m.store.Save(context.WithoutCancel(ctx), session); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to save session: %w", err))
		}
		return fnErr
	})
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, key domain.SessionKey, fn func(context.Context) error) error {
	if err := key.Validate(); err != nil {
		return err
	}
	id := key.Encode()

	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
