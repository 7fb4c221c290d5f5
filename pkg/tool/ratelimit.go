package tool

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
	"golang.org/x/time/rate"
)

type rateLimited struct {
	Tool
	limiter *rate.Limiter
}

// RateLimited wraps t so each invocation first waits for a limiter token.
// A wait cut short by the context is reported as a Failure.
func RateLimited(t Tool, limiter *rate.Limiter) Tool {
	if limiter == nil {
		return t
	}
	return &rateLimited{Tool: t, limiter: limiter}
}

func (r *rateLimited) Invoke(ctx context.Context, args map[string]any, state domain.State) domain.Result {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.Failf("%s rate limited: %v", r.Name(), err)
	}
	return r.Tool.Invoke(ctx, args, state)
}
