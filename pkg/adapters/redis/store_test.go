package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/femto/minion-novel/pkg/adapters/redis"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunSessionStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("test:"))
	key := domain.NewSessionKey("weather", "alice", "s1")

	require.NoError(t, store.Save(context.Background(), domain.NewSession(key, nil)))

	assert.True(t, mr.Exists("test:weather/alice/s1"))
	assert.True(t, mr.Exists("test:index"))
}

func TestRedisStore_TTL(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	store := redis.NewFromClient(client, redis.WithTTL(time.Minute))
	key := domain.NewSessionKey("weather", "alice", "expiring")

	require.NoError(t, store.Save(ctx, domain.NewSession(key, map[string]any{"k": "v"})))
	assert.Equal(t, time.Minute, mr.TTL(redis.DefaultPrefix+key.Encode()))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
