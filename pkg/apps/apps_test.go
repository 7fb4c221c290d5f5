package apps_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/apps"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/femto/minion-novel/pkg/tools/research"
	"github.com/femto/minion-novel/pkg/tools/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	runner *runner.Runner
	store  *memory.Store
}

func newHarness(t *testing.T, deps apps.Deps) *harness {
	t.Helper()
	store := memory.NewStore()
	if deps.Store == nil {
		deps.Store = store
	}
	r := runner.New(session.NewManager(store))
	builtin, err := apps.Builtin(deps)
	require.NoError(t, err)
	require.NoError(t, apps.Register(r, builtin...))
	return &harness{runner: r, store: store}
}

func (h *harness) turn(t *testing.T, app, sessionID, input string) *runner.TurnResult {
	t.Helper()
	res, err := h.runner.RunTurn(context.Background(), runner.TurnRequest{AppName: app, UserID: "u1", SessionID: sessionID, Input: input})
	require.NoError(t, err)
	return res
}

func (h *harness) state(t *testing.T, app, sessionID string) domain.State {
	t.Helper()
	sess, err := h.store.Load(context.Background(), domain.NewSessionKey(app, "u1", sessionID))
	require.NoError(t, err)
	return sess.State
}

func countKind(events []*domain.Event, kind domain.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestBuiltin(t *testing.T) {
	builtin, err := apps.Builtin(apps.Deps{})
	require.NoError(t, err)

	var names []string
	for _, a := range builtin {
		names = append(names, a.Name)
		assert.NotEmpty(t, a.Description)
	}
	assert.Equal(t, []string{"calculator", "novel", "research", "weather"}, names)

	_, err = apps.Find(builtin, "nope")
	assert.Error(t, err)
}

func TestWeather(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.WeatherApp, "s1", "What's the weather in New York?")
	assert.Equal(t, "The weather in New york is sunny with a temperature of 25°C.", res.FinalText)
	assert.Nil(t, res.Failure)

	st := h.state(t, apps.WeatherApp, "s1")
	assert.Equal(t, "New York", st[weather.KeyLastCity])
	assert.Equal(t, res.FinalText, st[apps.KeyWeatherReport])
	assert.Equal(t, weather.Celsius, st[weather.KeyUnitPreference])
}

func TestWeather_Fahrenheit(t *testing.T) {
	h := newHarness(t, apps.Deps{})
	h.runner.SetInitialState(apps.WeatherApp, map[string]any{weather.KeyUnitPreference: weather.Fahrenheit})

	res := h.turn(t, apps.WeatherApp, "s1", "weather in london please")
	assert.Equal(t, "The weather in London is cloudy with a temperature of 59°F.", res.FinalText)
}

func TestWeather_UnknownCity(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.WeatherApp, "s1", "weather in Atlantis")
	assert.Equal(t, "get_weather failed: Sorry, I don't have weather information for 'Atlantis'.", res.FinalText)
	assert.ErrorIs(t, res.Failure, domain.ErrToolFailure)
	assert.False(t, h.state(t, apps.WeatherApp, "s1").Has(apps.KeyWeatherReport))
}

func TestWeather_Delegation(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.WeatherApp, "s1", "Hello, I'm Alice")
	assert.Equal(t, "Hello, Alice!", res.FinalText)
	assert.Equal(t, 1, countKind(res.Events, domain.EventDelegation))
	final := res.Events[len(res.Events)-1]
	assert.Equal(t, domain.EventAdopted, final.Kind)
	assert.Equal(t, apps.WeatherRoot, final.Author)

	res = h.turn(t, apps.WeatherApp, "s1", "ok bye")
	assert.Equal(t, "Goodbye! Have a great day.", res.FinalText)
	assert.Equal(t, "Goodbye! Have a great day.", h.state(t, apps.WeatherApp, "s1")[apps.KeyWeatherReport])
}

func TestWeather_Guardrails(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.WeatherApp, "s1", "BLOCK the weather in London")
	assert.Equal(t, "I cannot process this request because it contains the blocked keyword 'BLOCK'.", res.FinalText)
	assert.ErrorIs(t, res.Failure, domain.ErrGuardrailBlock)
	assert.Equal(t, 0, countKind(res.Events, domain.EventToolCall))
	st := h.state(t, apps.WeatherApp, "s1")
	assert.Equal(t, true, st[apps.KeyBlockKeyword])
	assert.False(t, st.Has(weather.KeyLastCity))

	res = h.turn(t, apps.WeatherApp, "s2", "How is the weather in paris?")
	assert.Equal(t, "Policy restriction: Weather checks for 'Paris' are currently disabled.", res.FinalText)
	assert.ErrorIs(t, res.Failure, domain.ErrGuardrailBlock)
	assert.Equal(t, 0, countKind(res.Events, domain.EventToolCall))
	assert.Equal(t, true, h.state(t, apps.WeatherApp, "s2")[apps.KeyBlockTool])
}

func TestWeather_Recall(t *testing.T) {
	h := newHarness(t, apps.Deps{})
	h.turn(t, apps.WeatherApp, "old", "weather in Tokyo")

	res := h.turn(t, apps.WeatherApp, "new", "do you remember tokyo")
	assert.Contains(t, res.FinalText, "Here is what I remember:")
	assert.Contains(t, res.FinalText, "weather in Tokyo")
}

func TestWeather_Help(t *testing.T) {
	h := newHarness(t, apps.Deps{})
	res := h.turn(t, apps.WeatherApp, "s1", "sing me a song")
	assert.Nil(t, res.Failure)
	assert.Contains(t, res.FinalText, "New York, London or Tokyo")
}

func TestCalculator(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	tests := []struct {
		input string
		want  string
	}{
		{"add 2 and 3", "2 + 3 = 5"},
		{"subtract 3 from 10", "10 - 3 = 7"},
		{"multiply 4 by 2.5", "4 * 2.5 = 10"},
		{"what is 10 / 4?", "10 / 4 = 2.5"},
		{"what is 2*(3+4)", "2*(3+4) = 14"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := h.turn(t, apps.CalculatorApp, "s1", tt.input)
			assert.Nil(t, res.Failure)
			assert.Equal(t, tt.want, res.FinalText)
		})
	}
}

func TestCalculator_DivideByZero(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.CalculatorApp, "s1", "10 / 0")
	assert.Contains(t, res.FinalText, "divide by zero")
	assert.ErrorIs(t, res.Failure, domain.ErrToolFailure)
	assert.False(t, h.state(t, apps.CalculatorApp, "s1").Has(apps.KeyLastCalculation))
}

func TestNovel(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	var commits []string
	h.runner = runner.New(session.NewManager(h.store), runner.WithHooks(domain.LifecycleHooks{
		OnStateCommit: func(_ context.Context, ev *domain.CommitEvent) { commits = append(commits, ev.Key) },
	}))
	a, err := apps.Novel(apps.Deps{})
	require.NoError(t, err)
	require.NoError(t, apps.Register(h.runner, a))

	res := h.turn(t, apps.NovelApp, "s1", "Write a short sci-fi novel about robots learning to dream")
	require.Nil(t, res.Failure, res.FinalText)

	assert.Equal(t, []string{
		apps.KeyNovelParams, apps.KeyNovelOutline, apps.KeyNovelCharacter,
		apps.ActKey(1), apps.ActKey(2), apps.ActKey(3),
	}, commits)

	st := h.state(t, apps.NovelApp, "s1")
	params := apps.ParseNovelParams(st.GetString(apps.KeyNovelParams, ""))
	assert.Equal(t, apps.NovelParams{Genre: "science fiction", Theme: "robots learning to dream", Length: "short"}, params)

	// The outline written by one stage is what later stages read back.
	outline := st.GetString(apps.KeyNovelOutline, "")
	chapters := apps.ParseOutline(outline)
	assert.Len(t, chapters, 14)
	assert.Equal(t, apps.Outline(params), outline)

	act2 := st.GetString(apps.ActKey(2), "")
	assert.Equal(t, 6, strings.Count(act2, "## Chapter "))
	assert.Contains(t, act2, "## Chapter 5: Trials")
	assert.Equal(t, st.GetString(apps.ActKey(3), ""), res.FinalText)
}

func TestNovel_Help(t *testing.T) {
	h := newHarness(t, apps.Deps{})
	res := h.turn(t, apps.NovelApp, "s1", "hi")
	assert.Nil(t, res.Failure)
	assert.False(t, h.state(t, apps.NovelApp, "s1").Has(apps.KeyNovelParams))
}

func TestExtractNovelParams(t *testing.T) {
	tests := []struct {
		input string
		want  apps.NovelParams
	}{
		{"Write me something", apps.NovelParams{Genre: "fantasy", Theme: "adventure and discovery", Length: "medium"}},
		{"Start a fantasy novel about friendship and courage, medium length", apps.NovelParams{Genre: "fantasy", Theme: "friendship and courage", Length: "medium"}},
		{"A long mystery novel about a detective in a small town", apps.NovelParams{Genre: "mystery", Theme: "a detective in a small town", Length: "long"}},
		{"romance about cats", apps.NovelParams{Genre: "romance", Theme: "adventure and discovery", Length: "medium"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, apps.ExtractNovelParams(tt.input))
		})
	}
}

func TestChapters(t *testing.T) {
	assert.Equal(t, 14, apps.Chapters("short").Total())
	assert.Equal(t, 20, apps.Chapters("medium").Total())
	assert.Equal(t, 26, apps.Chapters("LONG").Total())
	assert.Equal(t, apps.ChapterPlan{6, 8, 6}, apps.Chapters("epic"))
}

func TestResearch(t *testing.T) {
	searcher := research.SearcherFunc(func(_ context.Context, q string, max int) ([]research.Result, error) {
		return []research.Result{{Title: q, Content: "About " + q + ".", Source: "https://example.org/" + q, RelevanceScore: 0.9}}, nil
	})
	h := newHarness(t, apps.Deps{Searcher: searcher})

	res := h.turn(t, apps.ResearchApp, "s1", "Research quantum computing?")
	require.Nil(t, res.Failure, res.FinalText)
	assert.True(t, strings.HasPrefix(res.FinalText, "# Research Report: quantum computing"))

	st := h.state(t, apps.ResearchApp, "s1")
	assert.Equal(t, res.FinalText, st[apps.KeyResearchReport])
	assert.Contains(t, st.GetString(apps.KeyResearchQueries, ""), "What is quantum computing?")
	assert.Equal(t, "Collected 5 search results.", st[apps.KeyResearchResults])
	assert.Equal(t, "Kept the 5 most relevant of 5 results.", st[apps.KeyResearchAnalysis])
}

func TestResearch_OfflineFallback(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	res := h.turn(t, apps.ResearchApp, "s1", "tell me about tides")
	require.Nil(t, res.Failure, res.FinalText)
	assert.Contains(t, res.FinalText, research.FallbackSource)
}

func TestResearch_StageFailure(t *testing.T) {
	h := newHarness(t, apps.Deps{})

	// Generating queries needs a topic: the first stage fails and nothing
	// downstream runs.
	res := h.turn(t, apps.ResearchApp, "s1", "research ?")
	require.NotNil(t, res.Failure)
	assert.True(t, errors.Is(res.Failure, domain.ErrPipelineStageFailure))
	assert.Equal(t, "query_generator", res.Failure.Stage)
	assert.Equal(t, 1, countKind(res.Events, domain.EventToolCall))
	assert.False(t, h.state(t, apps.ResearchApp, "s1").Has(apps.KeyResearchResults))
}

func TestResearchTopic(t *testing.T) {
	assert.Equal(t, "quantum computing", apps.ResearchTopic("Please research quantum computing?"))
	assert.Equal(t, "tides", apps.ResearchTopic("tell me about tides"))
	assert.Equal(t, "llamas", apps.ResearchTopic("llamas"))
}

func TestToolRegistry(t *testing.T) {
	reg := apps.ToolRegistry(apps.Deps{})
	assert.NotContains(t, reg.Names(), "load_memory")
	for _, name := range []string{"say_hello", "say_goodbye", "calculate", "evaluate", "get_weather", "web_search"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}

	withStore := apps.ToolRegistry(apps.Deps{Store: memory.NewStore()})
	assert.Contains(t, withStore.Names(), "load_memory")
}
