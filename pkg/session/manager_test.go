package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Save(ctx context.Context, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, sess)
}

func (s SlowStore) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, key)
}

func TestManager_TurnSerializesPerSession(t *testing.T) {
	manager := session.NewManager(SlowStore{memory.NewStore()})
	ctx := context.Background()
	key := domain.NewSessionKey("app", "user", "race-test")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.Turn(ctx, key, nil, func(ctx context.Context, s *domain.Session) error {
				s.State.Set("counter", s.State.GetInt("counter", 0)+1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := manager.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, workers, loaded.State.GetInt("counter", 0), "no increments should be lost")
}

func TestManager_SessionsRunConcurrently(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var inside atomic.Int32
	var maxInside atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = manager.Turn(ctx, domain.NewSessionKey("app", "u", id), nil, func(ctx context.Context, s *domain.Session) error {
				n := inside.Add(1)
				for {
					cur := maxInside.Load()
					if n <= cur || maxInside.CompareAndSwap(cur, n) {
						break
					}
				}
				<-release
				inside.Add(-1)
				return nil
			})
		}(id)
	}

	assert.Eventually(t, func() bool { return maxInside.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}

func TestManager_TurnSavesOnFailure(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	key := domain.NewSessionKey("app", "user", "cancelled")

	err := manager.Turn(ctx, key, map[string]any{"seed": true}, func(ctx context.Context, s *domain.Session) error {
		s.State.Set("committed", "before cancel")
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	loaded, err := manager.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "before cancel", loaded.State["committed"])
	assert.Equal(t, true, loaded.State["seed"])
}

func TestManager_LoadOrCreate(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	key := domain.NewSessionKey("app", "user", "new")

	_, err := manager.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	created, err := manager.LoadOrCreate(ctx, key, map[string]any{"unit": "Celsius"})
	require.NoError(t, err)
	assert.Equal(t, "Celsius", created.State["unit"])

	created.State.Set("unit", "Fahrenheit")
	require.NoError(t, manager.Save(ctx, created))

	again, err := manager.LoadOrCreate(ctx, key, map[string]any{"unit": "Celsius"})
	require.NoError(t, err)
	assert.Equal(t, "Fahrenheit", again.State["unit"], "initial state only applies on creation")

	keys, err := manager.List(ctx, ports.ListFilter{AppName: "app"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionKey{key}, keys)
}

type fakeLocker struct {
	locked   atomic.Int32
	unlocked atomic.Int32
	fail     bool
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.fail {
		return nil, errors.New("redis down")
	}
	f.locked.Add(1)
	return func(ctx context.Context) error {
		f.unlocked.Add(1)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()
	key := domain.NewSessionKey("app", "user", "dist")

	require.NoError(t, manager.Turn(ctx, key, nil, func(ctx context.Context, s *domain.Session) error { return nil }))
	assert.EqualValues(t, 1, locker.locked.Load())
	assert.EqualValues(t, 1, locker.unlocked.Load())

	locker.fail = true
	err := manager.Turn(ctx, key, nil, func(ctx context.Context, s *domain.Session) error { return nil })
	assert.ErrorContains(t, err, "distributed lock")
}

func TestManager_InvalidKey(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	err := manager.Turn(context.Background(), domain.NewSessionKey("", "u", "s"), nil, func(ctx context.Context, s *domain.Session) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSessionKey)
}

func TestManager_TurnCarriesKey(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	key := domain.NewSessionKey("app", "user", "ctx")

	_, ok := session.KeyFromContext(context.Background())
	assert.False(t, ok)

	err := manager.Turn(context.Background(), key, nil, func(ctx context.Context, _ *domain.Session) error {
		got, ok := session.KeyFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, key, got)
		return nil
	})
	require.NoError(t, err)
}
