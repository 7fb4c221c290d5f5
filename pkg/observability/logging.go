package observability

import (
	"context"
	"log/slog"

	"github.com/femto/minion-novel/pkg/domain"
)

// LoggingHooks logs the turn lifecycle: turns at info, agents and tools at
// debug, guardrail vetoes and tool failures at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, e *domain.TurnEvent) {
			logger.InfoContext(ctx, "turn started", "session", e.Key.String(), "invocation", e.InvocationID)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			attrs := []any{"session", e.Key.String(), "invocation", e.InvocationID, "duration", e.Duration}
			if e.Err != nil {
				logger.WarnContext(ctx, "turn aborted", append(attrs, "err", e.Err)...)
				return
			}
			if e.Failure != nil {
				attrs = append(attrs, "failure", e.Failure.Kind, "reason", e.Failure.Reason)
			}
			logger.InfoContext(ctx, "turn finished", attrs...)
		},
		OnAgentEnter: func(ctx context.Context, e *domain.AgentEvent) {
			logger.DebugContext(ctx, "agent enter", "agent", e.Agent, "kind", e.Kind)
		},
		OnAgentLeave: func(ctx context.Context, e *domain.AgentEvent) {
			attrs := []any{"agent", e.Agent, "kind", e.Kind}
			if e.Terminal != nil {
				attrs = append(attrs, "event", e.Terminal.Kind)
			}
			logger.DebugContext(ctx, "agent leave", attrs...)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "tool call", "agent", e.Agent, "tool", e.Call.Name, "call_id", e.Call.ID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			if e.Result != nil && e.Result.Failed() {
				logger.WarnContext(ctx, "tool failed", "agent", e.Agent, "tool", e.Call.Name, "reason", e.Result.Reason, "duration", e.Duration)
				return
			}
			logger.DebugContext(ctx, "tool return", "agent", e.Agent, "tool", e.Call.Name, "duration", e.Duration)
		},
		OnBlocked: func(ctx context.Context, e *domain.GuardrailEvent) {
			logger.WarnContext(ctx, "guardrail blocked request", "agent", e.Agent, "guardrail", e.Guardrail, "reason", e.Reason)
		},
		OnStateCommit: func(ctx context.Context, e *domain.CommitEvent) {
			logger.DebugContext(ctx, "state commit", "agent", e.Agent, "key", e.Key)
		},
	}
}
