package agent_test

import (
	"context"
	"testing"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingPolicy(t *testing.T) {
	p := &agent.RoutingPolicy{
		Routes: []agent.Route{
			{Name: "bye", Match: agent.Keywords("bye", "see you"), Action: agent.Action{Delegate: "farewell"}},
			{Name: "weather", Match: agent.MustRegex(`weather in ([a-z ]+)`), Action: agent.Action{
				Tool: "get_weather",
				Args: func(_ string, g []string) map[string]any { return map[string]any{"city": g[1]} },
			}},
		},
	}
	ctx := context.Background()

	d, err := p.Decide(ctx, &agent.Request{Message: "OK, see you later"})
	require.NoError(t, err)
	assert.Equal(t, agent.Delegate("farewell", ""), d)

	d, err = p.Decide(ctx, &agent.Request{Message: "What's the Weather in London"})
	require.NoError(t, err)
	assert.Equal(t, agent.CallTool("get_weather", map[string]any{"city": "London"}), d)

	_, err = p.Decide(ctx, &agent.Request{Message: "sing"})
	assert.ErrorIs(t, err, agent.ErrNoRoute)

	d, err = p.Decide(ctx, &agent.Request{History: []agent.Exchange{{
		Call:   domain.ToolCall{Name: "get_weather"},
		Result: domain.OK(map[string]any{"report": "Sunny"}),
	}}})
	require.NoError(t, err)
	assert.Equal(t, agent.Answer("Sunny"), d)

	fallback := agent.Answer("I only do weather.")
	p.Fallback = &fallback
	d, err = p.Decide(ctx, &agent.Request{Message: "sing"})
	require.NoError(t, err)
	assert.Equal(t, fallback, d)
}

func TestRegex_Invalid(t *testing.T) {
	_, err := agent.Regex("(")
	assert.Error(t, err)
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "a: 1, b: x", agent.FormatResult(agent.Exchange{Result: domain.OK(map[string]any{"b": "x", "a": 1})}))
	assert.Equal(t, "42", agent.FormatResult(agent.Exchange{Result: domain.OK(42)}))
}
