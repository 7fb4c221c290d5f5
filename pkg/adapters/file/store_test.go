package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/femto/minion-novel/pkg/adapters/file"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunSessionStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	base := t.TempDir()
	store := file.New(base)
	key := domain.NewSessionKey("weather", "user/1", "s1")

	require.NoError(t, store.Save(context.Background(), domain.NewSession(key, map[string]any{"a": 1})))

	_, err := os.Stat(filepath.Join(base, "weather", "user%2F1", "s1.json"))
	assert.NoError(t, err, "session should be stored under app/user directories")

	entries, err := os.ReadDir(filepath.Join(base, "weather", "user%2F1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should remain after save")
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	err := store.Save(context.Background(), domain.NewSession(domain.NewSessionKey("..", "u", "s"), nil))
	assert.ErrorIs(t, err, domain.ErrInvalidSessionKey)
}

func TestFileStore_ListMissingBase(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	keys, err := store.List(context.Background(), ports.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_ListTempLikeIDs(t *testing.T) {
	base := t.TempDir()
	store := file.New(base)
	ctx := context.Background()
	tmpKey := domain.NewSessionKey("app", "u", "tmp-1")
	plainKey := domain.NewSessionKey("app", "u", "s1")

	require.NoError(t, store.Save(ctx, domain.NewSession(tmpKey, nil)))
	require.NoError(t, store.Save(ctx, domain.NewSession(plainKey, nil)))
	// A leftover partial write is not a session.
	require.NoError(t, os.WriteFile(filepath.Join(base, "app", "u", "tmp-123.json.partial"), []byte("{"), 0o644))

	keys, err := store.List(ctx, ports.ListFilter{AppName: "app"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionKey{plainKey, tmpKey}, keys)
}

func TestFileStore_Overwrite(t *testing.T) {
	base := t.TempDir()
	store := file.New(base)
	ctx := context.Background()
	key := domain.NewSessionKey("app", "u", "s1")

	require.NoError(t, store.Save(ctx, domain.NewSession(key, map[string]any{"v": "first"})))
	require.NoError(t, store.Save(ctx, domain.NewSession(key, map[string]any{"v": "second"})))

	sess, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", sess.State["v"])

	entries, err := os.ReadDir(filepath.Join(base, "app", "u"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the old document is replaced in place")
}
