package runner

import (
	"log/slog"

	"github.com/femto/minion-novel/pkg/domain"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHooks configures the lifecycle hooks. Use domain.MergeHooks to
// combine several sets.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithMaxSteps bounds the policy/tool loop of every node.
func WithMaxSteps(steps int) Option {
	return func(r *Runner) {
		r.maxSteps = steps
	}
}

// WithInitialState seeds new sessions of app with state.
func WithInitialState(app string, state map[string]any) Option {
	return func(r *Runner) {
		r.initial[app] = state
	}
}

// WithInputLimit sets the maximum input size in bytes.
func WithInputLimit(limit int) Option {
	return func(r *Runner) {
		r.inputLimit = limit
	}
}
