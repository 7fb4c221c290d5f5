package tool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestInvoke_RecoversPanics(t *testing.T) {
	boom := tool.New("boom", "panics", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		panic("kaboom")
	})

	res := tool.Invoke(context.Background(), boom, nil, domain.State{})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Reason, "kaboom")
}

func TestInvoke_ErrorBecomesFailure(t *testing.T) {
	failing := tool.New("lookup", "fails", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		return nil, errors.New("missing lookup key")
	})

	res := tool.Invoke(context.Background(), failing, nil, domain.State{})
	assert.Equal(t, domain.Fail("missing lookup key"), res)
}

func TestInvoke_CancelledContext(t *testing.T) {
	called := false
	tl := tool.New("t", "", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		called = true
		return "ok", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := tool.Invoke(ctx, tl, nil, domain.State{})
	assert.True(t, res.Failed())
	assert.False(t, called)
}

func TestInvoke_StateMutationVisible(t *testing.T) {
	writer := tool.New("writer", "", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		state.Set("last", args["v"])
		return nil, nil
	})
	state := domain.State{}

	res := tool.Invoke(context.Background(), writer, map[string]any{"v": "x"}, state)
	require.False(t, res.Failed())
	assert.Equal(t, "x", state["last"])
}

type calcArgs struct {
	Operation string   `json:"operation" validate:"required,oneof=add divide"`
	A         *float64 `json:"a" validate:"required"`
	B         *float64 `json:"b" validate:"required"`
}

func TestTyped_DecodeAndValidate(t *testing.T) {
	add := tool.Typed("add", "", func(ctx context.Context, in calcArgs, state domain.State) (any, error) {
		return *in.A + *in.B, nil
	})
	ctx := context.Background()

	res := tool.Invoke(ctx, add, map[string]any{"operation": "add", "a": "10", "b": 0}, nil)
	require.False(t, res.Failed(), res.Reason)
	assert.Equal(t, 10.0, res.Data)

	res = tool.Invoke(ctx, add, map[string]any{"operation": "pow", "a": 1, "b": 2}, nil)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Reason, "operation must be one of [add divide]")

	res = tool.Invoke(ctx, add, map[string]any{"operation": "add", "a": 1}, nil)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Reason, "b is required")

	res = tool.Invoke(ctx, add, map[string]any{"operation": "add", "a": "ten", "b": 1}, nil)
	assert.True(t, res.Failed())
	assert.Contains(t, res.Reason, "invalid arguments")
}

func TestRegistry(t *testing.T) {
	echo := tool.New("echo", "echoes", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		return args["text"], nil
	}, tool.WithParameters(tool.Object(map[string]any{"text": tool.Property("string", "text to echo")}, "text")))
	reg := tool.NewRegistry(echo)

	res := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, domain.State{})
	assert.Equal(t, domain.OK("hi"), res)

	res = reg.Execute(context.Background(), "missing", nil, domain.State{})
	assert.Equal(t, "tool not found: missing", res.Reason)

	specs := reg.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, []string{"text"}, specs[0].Parameters["required"])

	_, err := reg.Lookup("echo", "missing")
	assert.EqualError(t, err, "tool not found: missing")
}

func TestRateLimited(t *testing.T) {
	calls := 0
	base := tool.New("search", "", func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
		calls++
		return calls, nil
	})
	limited := tool.RateLimited(base, rate.NewLimiter(rate.Every(time.Hour), 1))

	assert.False(t, tool.Invoke(context.Background(), limited, nil, nil).Failed())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := tool.Invoke(ctx, limited, nil, nil)
	assert.True(t, res.Failed(), "second call exceeds the budget within the deadline")
	assert.Equal(t, 1, calls)
	assert.Equal(t, "search", limited.Name())
}
