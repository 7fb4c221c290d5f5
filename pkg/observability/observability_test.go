package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()
	key := domain.NewSessionKey("weather", "u1", "s1")

	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Key: key, Duration: time.Millisecond})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Key: key, Failure: domain.NewFailure(domain.GuardrailBlock, "root", "no")})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Key: key, Failure: domain.NewFailure(domain.ToolFailure, "root", "boom")})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Key: key, Err: context.Canceled})

	ok := domain.OK("fine")
	failed := domain.Fail("bad")
	hooks.OnToolReturn(ctx, &domain.ToolEvent{Call: domain.ToolCall{Name: "get_weather"}, Result: &ok})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{Call: domain.ToolCall{Name: "get_weather"}, Result: &failed})

	hooks.OnBlocked(ctx, &domain.GuardrailEvent{Agent: "root", Guardrail: "keyword:BLOCK"})
	hooks.OnStateCommit(ctx, &domain.CommitEvent{Agent: "root", Key: "k"})
	hooks.OnStateCommit(ctx, &domain.CommitEvent{Agent: "root", Key: "k"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("weather", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("weather", OutcomeBlocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("weather", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("weather", OutcomeAborted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("get_weather", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("get_weather", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardrailHits.WithLabelValues("root", "keyword:BLOCK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StateCommits.WithLabelValues("root")))

	n, err := testutil.GatherAndCount(reg, "minion_turn_duration_seconds", "minion_tool_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() { NewMetrics(nil) })
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := LoggingHooks(logger)
	ctx := context.Background()

	failed := domain.Fail("city not found")
	hooks.OnTurnStart(ctx, &domain.TurnEvent{Key: domain.NewSessionKey("a", "u", "s"), InvocationID: "inv-1"})
	hooks.OnToolReturn(ctx, &domain.ToolEvent{Agent: "root", Call: domain.ToolCall{Name: "get_weather"}, Result: &failed})
	hooks.OnBlocked(ctx, &domain.GuardrailEvent{Agent: "root", Guardrail: "keyword:BLOCK", Reason: "blocked"})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Key: domain.NewSessionKey("a", "u", "s"), InvocationID: "inv-2", Err: context.Canceled})

	out := buf.String()
	assert.Contains(t, out, "turn started")
	assert.Contains(t, out, "inv-1")
	assert.Contains(t, out, "level=WARN msg=\"tool failed\"")
	assert.Contains(t, out, "guardrail blocked request")
	assert.Contains(t, out, "level=WARN msg=\"turn aborted\"")
	assert.Contains(t, out, "err=\"context canceled\"")
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
