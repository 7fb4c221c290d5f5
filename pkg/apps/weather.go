package apps

import (
	"strings"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/femto/minion-novel/pkg/tools/greeting"
	"github.com/femto/minion-novel/pkg/tools/recall"
	"github.com/femto/minion-novel/pkg/tools/weather"
)

// Weather app names and state keys.
const (
	WeatherApp       = "weather"
	WeatherRoot      = "weather_agent_v2"
	GreetingAgent    = "greeting_agent"
	FarewellAgent    = "farewell_agent"
	KeyWeatherReport = "last_weather_report"
	KeyBlockKeyword  = "guardrail_block_keyword_triggered"
	KeyBlockTool     = "guardrail_tool_block_triggered"
	BlockedKeyword   = "BLOCK"
	BlockedCity      = "Paris"
)

const weatherHelp = "I can tell you the weather in New York, London or Tokyo. I can also say hello or goodbye."

// Weather is the weather bot: a root agent with the weather tool, two
// children for greetings and farewells, and two guardrails.
func Weather(deps Deps) (App, error) {
	greeter, err := agent.NewNode(GreetingAgent,
		agent.WithDescription("Handles simple greetings and hellos using the 'say_hello' tool."),
		agent.WithTools(greeting.Hello()),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes: []agent.Route{{
				Name:  "named",
				Match: agent.MustRegex(`\b(?:i am|i'm|my name is|this is)\s+([\p{L}'-]+)`),
				Action: agent.Action{Tool: greeting.HelloName, Args: func(_ string, g []string) map[string]any {
					return map[string]any{"name": g[1]}
				}},
			}},
			Fallback: &agent.Decision{Kind: agent.DecisionCallTool, Tool: greeting.HelloName},
		}),
	)
	if err != nil {
		return App{}, err
	}

	farewell, err := agent.NewNode(FarewellAgent,
		agent.WithDescription("Handles simple farewells and goodbyes using the 'say_goodbye' tool."),
		agent.WithTools(greeting.Goodbye()),
		agent.WithPolicy(&agent.RoutingPolicy{
			Fallback: &agent.Decision{Kind: agent.DecisionCallTool, Tool: greeting.GoodbyeName},
		}),
	)
	if err != nil {
		return App{}, err
	}

	tools := []tool.Tool{weather.New(nil)}
	routes := []agent.Route{
		{Name: "farewell", Match: agent.MustRegex(`\b(?:bye|goodbye|farewell|see you)\b`), Action: agent.Action{Delegate: FarewellAgent}},
		{Name: "greeting", Match: agent.MustRegex(`^\s*(?:hello|hi|hey|greetings|good (?:morning|afternoon|evening))\b`), Action: agent.Action{Delegate: GreetingAgent}},
		{
			Name:  "weather",
			Match: agent.MustRegex(`\b(?:weather|temperature|forecast)\b.*?\b(?:in|for|at)\s+([\p{L}][\p{L} .'-]*)`),
			Action: agent.Action{Tool: weather.Name, Args: func(_ string, g []string) map[string]any {
				return map[string]any{"city": cleanCity(g[1])}
			}},
		},
	}
	if deps.Store != nil {
		tools = append(tools, recall.New(deps.Store))
		routes = append(routes, agent.Route{
			Name:  "recall",
			Match: agent.MustRegex(`\b(?:remember|recall)\b\s*(.*)`),
			Action: agent.Action{Tool: recall.Name, Args: func(msg string, g []string) map[string]any {
				q := strings.TrimSpace(g[1])
				if q == "" {
					q = msg
				}
				return map[string]any{"query": q}
			}},
		})
	}

	help := agent.Answer(weatherHelp)
	root, err := agent.NewNode(WeatherRoot,
		agent.WithDescription("The main coordinator agent. Handles weather requests and delegates greetings/farewells to specialists."),
		agent.WithTools(tools...),
		agent.WithChildren(greeter, farewell),
		agent.WithOutputKey(KeyWeatherReport),
		agent.WithInputGuardrail(agent.KeywordGuardrail(BlockedKeyword, KeyBlockKeyword)),
		agent.WithToolGuardrail(agent.ToolArgGuardrail(weather.Name, "city", []string{BlockedCity}, KeyBlockTool,
			"Policy restriction: Weather checks for 'Paris' are currently disabled.")),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes:    routes,
			AfterTool: weatherAnswer,
			Fallback:  &help,
		}),
	)
	if err != nil {
		return App{}, err
	}

	return App{
		Name:         WeatherApp,
		Description:  "Weather bot with greeting and farewell specialists, guardrails and a unit preference.",
		Root:         root,
		InitialState: map[string]any{weather.KeyUnitPreference: weather.Celsius},
	}, nil
}

func weatherAnswer(ex agent.Exchange) string {
	if ex.Call.Name != recall.Name {
		return agent.FormatResult(ex)
	}
	data, _ := ex.Result.Data.(map[string]any)
	memories, _ := data["memories"].([]any)
	if len(memories) == 0 {
		return "I don't remember anything about that."
	}
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		if mm, ok := m.(map[string]any); ok {
			text, _ := mm["text"].(string)
			lines = append(lines, "- "+text)
		}
	}
	return "Here is what I remember:\n" + strings.Join(lines, "\n")
}

var trailingWords = []string{" right now", " today", " now", " please"}

func cleanCity(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ".'- ")
	for _, w := range trailingWords {
		if strings.HasSuffix(strings.ToLower(s), w) {
			s = strings.TrimSpace(s[:len(s)-len(w)])
		}
	}
	return s
}
