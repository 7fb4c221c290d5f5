package middleware_test

import (
	"context"
	"testing"

	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)

	ctx := context.Background()
	key := domain.NewSessionKey("app", "u", "pii")
	session := domain.NewSession(key, map[string]any{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
	})
	session.Append(&domain.Event{Kind: domain.EventToolResult, StateDelta: map[string]any{"user_password": "secret123"}})

	require.NoError(t, secure.Save(ctx, session))

	// The caller's session is untouched.
	assert.Equal(t, "secret123", session.State["user_password"])

	stored, err := underlying.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", stored.State["username"])
	assert.Equal(t, middleware.Mask, stored.State["user_password"])
	details := stored.State["details"].(map[string]any)
	assert.Equal(t, middleware.Mask, details["ssn_number"])
	assert.Equal(t, "123 St", details["address"])
	assert.Equal(t, middleware.Mask, stored.Events[0].StateDelta["user_password"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"password"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: make([]byte, 32)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	key := domain.NewSessionKey("app", "u", "chain")
	require.NoError(t, store.Save(ctx, domain.NewSession(key, map[string]any{"password": "x", "a": 1})))

	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.State["password"], "masking happens before sealing")
}
