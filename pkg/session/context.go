package session

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
)

type keyCtx struct{}

// ContextWithKey attaches the session key of the running turn to ctx.
func ContextWithKey(ctx context.Context, key domain.SessionKey) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFromContext returns the session key of the running turn, if any.
func KeyFromContext(ctx context.Context) (domain.SessionKey, bool) {
	key, ok := ctx.Value(keyCtx{}).(domain.SessionKey)
	return key, ok
}
