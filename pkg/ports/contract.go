package ports

import (
	"context"
	"testing"
	"time"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000")
	app := "contract-app"
	user := "contract-user"
	key := domain.NewSessionKey(app, user, "session-"+suffix)

	t.Run("Save and Load", func(t *testing.T) {
		session := domain.NewSession(key, map[string]any{"foo": "bar", "count": 42})
		session.Append(&domain.Event{ID: "e1", Author: "user", Kind: domain.EventUserMessage, Text: "hello"})

		err := store.Save(ctx, session)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, key, loaded.Key)
		assert.Equal(t, "bar", loaded.State["foo"])
		// JSON backed stores decode numbers as float64.
		assert.EqualValues(t, 42, loaded.State.GetInt("count", 0))
		require.Len(t, loaded.Events, 1)
		assert.Equal(t, "hello", loaded.Events[0].Text)
	})

	t.Run("Value Round Trip", func(t *testing.T) {
		session := domain.NewSession(key, nil)
		session.State.Set("novel_outline", map[string]any{"act1": "setup"})
		session.State.Set("tags", []any{"a", "b"})
		session.State.Set("done", true)
		require.NoError(t, store.Save(ctx, session))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"act1": "setup"}, loaded.State["novel_outline"])
		assert.Equal(t, []any{"a", "b"}, loaded.State["tags"])
		assert.Equal(t, true, loaded.State["done"])
	})

	t.Run("Isolation", func(t *testing.T) {
		session := domain.NewSession(key, map[string]any{"k": "v"})
		require.NoError(t, store.Save(ctx, session))

		session.State.Set("k", "mutated after save")
		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v", loaded.State["k"])

		loaded.State.Set("k", "mutated after load")
		again, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v", again.State["k"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.NewSessionKey(app, user, "non-existent-"+suffix))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(key, nil)))

		err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		k1 := domain.NewSessionKey(app, user, "list-1-"+suffix)
		k2 := domain.NewSessionKey(app, "other-user", "list-2-"+suffix)
		k3 := domain.NewSessionKey("other-app", user, "list-3-"+suffix)
		for _, k := range []domain.SessionKey{k1, k2, k3} {
			require.NoError(t, store.Save(ctx, domain.NewSession(k, nil)))
		}
		defer func() {
			for _, k := range []domain.SessionKey{k1, k2, k3} {
				_ = store.Delete(ctx, k)
			}
		}()

		all, err := store.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Contains(t, all, k1)
		assert.Contains(t, all, k2)
		assert.Contains(t, all, k3)

		byApp, err := store.List(ctx, ListFilter{AppName: app})
		require.NoError(t, err)
		assert.Contains(t, byApp, k1)
		assert.Contains(t, byApp, k2)
		assert.NotContains(t, byApp, k3)

		byUser, err := store.List(ctx, ListFilter{AppName: app, UserID: user})
		require.NoError(t, err)
		assert.Contains(t, byUser, k1)
		assert.NotContains(t, byUser, k2)
	})
}
