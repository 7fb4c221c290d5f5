package runner_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/observability"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterApp increments "count" on "inc" and echoes everything else.
func counterApp(t *testing.T) agent.Agent {
	t.Helper()
	inc := tool.New("increment", "Adds one to count.", func(_ context.Context, _ map[string]any, state domain.State) (any, error) {
		n := state.GetInt("count", 0) + 1
		state.Set("count", n)
		return map[string]any{"result": "count is now " + strings.Repeat("I", n)}, nil
	})
	echo := agent.Answer("echo")
	root, err := agent.NewNode("counter",
		agent.WithTools(inc),
		agent.WithOutputKey("last_reply"),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes:   []agent.Route{{Name: "inc", Match: agent.Keywords("inc"), Action: agent.Action{Tool: "increment"}}},
			Fallback: &echo,
		}),
	)
	require.NoError(t, err)
	return root
}

func newRunner(t *testing.T, opts ...runner.Option) (*runner.Runner, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	r := runner.New(session.NewManager(store), opts...)
	require.NoError(t, r.Register("counter", counterApp(t)))
	return r, store
}

func req(input string) runner.TurnRequest {
	return runner.TurnRequest{AppName: "counter", UserID: "u1", SessionID: "s1", Input: input}
}

func TestRunTurn(t *testing.T) {
	r, store := newRunner(t, runner.WithInitialState("counter", map[string]any{"count": 1}))

	res, err := r.RunTurn(context.Background(), req("inc please"))
	require.NoError(t, err)

	assert.Equal(t, "count is now II", res.FinalText)
	assert.Nil(t, res.Failure)
	assert.NotEmpty(t, res.InvocationID)

	var got []domain.EventKind
	for _, ev := range res.Events {
		got = append(got, ev.Kind)
		assert.Equal(t, res.InvocationID, ev.InvocationID)
	}
	assert.Equal(t, []domain.EventKind{domain.EventUserMessage, domain.EventToolCall, domain.EventToolResult, domain.EventAnswer}, got)
	assert.True(t, res.Events[3].Final)
	assert.False(t, res.Events[2].Final)

	sess, err := store.Load(context.Background(), domain.NewSessionKey("counter", "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, 2, sess.State.GetInt("count", 0))
	assert.Equal(t, "count is now II", sess.State["last_reply"])
	assert.Len(t, sess.Events, 4)

	// The next turn sees the state of the first.
	res, err = r.RunTurn(context.Background(), req("inc again"))
	require.NoError(t, err)
	assert.Equal(t, "count is now III", res.FinalText)
}

func TestRunTurn_Errors(t *testing.T) {
	r, _ := newRunner(t)

	_, err := r.RunTurn(context.Background(), runner.TurnRequest{AppName: "nope", UserID: "u", SessionID: "s", Input: "x"})
	assert.ErrorIs(t, err, runner.ErrUnknownApp)

	_, err = r.RunTurn(context.Background(), runner.TurnRequest{AppName: "counter", UserID: "", SessionID: "s", Input: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidSessionKey)

	_, err = r.RunTurn(context.Background(), req("\xff"))
	assert.ErrorIs(t, err, runner.ErrInvalidUTF8)
}

func TestRunTurn_InputLimit(t *testing.T) {
	r, _ := newRunner(t, runner.WithInputLimit(3))
	_, err := r.RunTurn(context.Background(), req("inc"))
	assert.NoError(t, err)
	_, err = r.RunTurn(context.Background(), req("inc!"))
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)
}

func TestRegister_RejectsInvalidTree(t *testing.T) {
	r := runner.New(session.NewManager(memory.NewStore()))
	leaf := agent.MustNode("leaf", agent.WithPolicy(agent.PolicyFunc(func(context.Context, *agent.Request) (agent.Decision, error) {
		return agent.Answer("x"), nil
	})))
	root := agent.MustNode("root", agent.WithChildren(leaf), agent.WithPolicy(&agent.RoutingPolicy{}))
	other := agent.MustNode("other", agent.WithChildren(leaf), agent.WithPolicy(&agent.RoutingPolicy{}))
	p := agent.MustPipeline("both", []agent.Stage{{Agent: root, Writes: "a"}, {Agent: other, Writes: "b"}})

	err := r.Register("bad", p)
	assert.ErrorIs(t, err, agent.ErrInvalidTree)
	assert.Empty(t, r.Apps())
	assert.NoError(t, r.Register("ok", root))
	assert.Equal(t, []string{"ok"}, r.Apps())
}

func TestStream(t *testing.T) {
	r, _ := newRunner(t)

	var kinds []domain.EventKind
	var last *domain.Event
	for ev, err := range r.Stream(context.Background(), req("inc")) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		last = ev
	}
	assert.Equal(t, []domain.EventKind{domain.EventUserMessage, domain.EventToolCall, domain.EventToolResult, domain.EventAnswer}, kinds)
	require.NotNil(t, last)
	assert.True(t, last.Final)
}

func TestStream_BreakKeepsAppliedState(t *testing.T) {
	r, store := newRunner(t)

	for ev, err := range r.Stream(context.Background(), req("inc")) {
		require.NoError(t, err)
		if ev.Kind == domain.EventToolResult {
			break
		}
	}

	sess, err := store.Load(context.Background(), domain.NewSessionKey("counter", "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, 1, sess.State.GetInt("count", 0), "tool mutations are retained")
	assert.False(t, sess.State.Has("last_reply"), "the answer never committed")
}

func TestStream_Error(t *testing.T) {
	r, _ := newRunner(t)
	var errs []error
	for _, err := range r.Stream(context.Background(), runner.TurnRequest{AppName: "missing"}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], runner.ErrUnknownApp)
}

func TestRunTurn_CancelledSavesSession(t *testing.T) {
	r, store := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunTurn(ctx, req("inc"))
	assert.ErrorIs(t, err, runner.ErrNoTerminal)
	assert.ErrorIs(t, err, context.Canceled)

	sess, loadErr := store.Load(context.Background(), domain.NewSessionKey("counter", "u1", "s1"))
	require.NoError(t, loadErr)
	require.Len(t, sess.Events, 1)
	assert.Equal(t, domain.EventUserMessage, sess.Events[0].Kind)
}

func TestRunTurn_SerializesSession(t *testing.T) {
	r, store := newRunner(t)

	const turns = 25
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.RunTurn(context.Background(), req("inc")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	sess, err := store.Load(context.Background(), domain.NewSessionKey("counter", "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, turns, sess.State.GetInt("count", 0))
}

func TestRunTurn_Hooks(t *testing.T) {
	var (
		mu     sync.Mutex
		starts int
		ends   []*domain.TurnEvent
	)
	hooks := domain.LifecycleHooks{
		OnTurnStart: func(context.Context, *domain.TurnEvent) {
			mu.Lock()
			defer mu.Unlock()
			starts++
		},
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
			mu.Lock()
			defer mu.Unlock()
			ends = append(ends, ev)
		},
	}
	r, _ := newRunner(t, runner.WithHooks(hooks))

	_, err := r.RunTurn(context.Background(), req("hello"))
	require.NoError(t, err)

	assert.Equal(t, 1, starts)
	require.Len(t, ends, 1)
	assert.Equal(t, "echo", ends[0].FinalText)
	assert.Equal(t, "hello", ends[0].Input)
	assert.Nil(t, ends[0].Failure)
}

func TestRunTurn_FailureIsNotAnError(t *testing.T) {
	boom := tool.New("boom", "", func(context.Context, map[string]any, domain.State) (any, error) {
		return nil, errors.New("exploded")
	})
	root := agent.MustNode("root", agent.WithTools(boom), agent.WithPolicy(&agent.RoutingPolicy{
		Fallback: &agent.Decision{Kind: agent.DecisionCallTool, Tool: "boom"},
	}))
	r := runner.New(session.NewManager(memory.NewStore()))
	require.NoError(t, r.Register("boom", root))

	res, err := r.RunTurn(context.Background(), runner.TurnRequest{AppName: "boom", UserID: "u", SessionID: "s", Input: "go"})
	require.NoError(t, err)
	assert.Equal(t, "boom failed: exploded", res.FinalText)
	assert.ErrorIs(t, res.Failure, domain.ErrToolFailure)
}

func TestRunTurn_AbortedTurnOutcome(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var ended []*domain.TurnEvent
	hooks := domain.MergeHooks(metrics.Hooks(), domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) { ended = append(ended, e) },
	})
	r, _ := newRunner(t, runner.WithHooks(hooks))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunTurn(ctx, req("inc"))
	require.Error(t, err)

	for ev, err := range r.Stream(context.Background(), req("inc")) {
		require.NoError(t, err)
		if ev.Kind == domain.EventUserMessage {
			break
		}
	}

	_, err = r.RunTurn(context.Background(), req("inc"))
	require.NoError(t, err)

	turns := func(outcome string) float64 {
		return testutil.ToFloat64(metrics.Turns.WithLabelValues("counter", outcome))
	}
	assert.Equal(t, 2.0, turns(observability.OutcomeAborted))
	assert.Equal(t, 1.0, turns(observability.OutcomeOK))
	assert.Equal(t, 0.0, turns(observability.OutcomeFailure))

	require.Len(t, ended, 3)
	assert.ErrorIs(t, ended[0].Err, context.Canceled)
	assert.ErrorIs(t, ended[1].Err, agent.ErrStreamClosed)
	assert.NoError(t, ended[2].Err)
}
