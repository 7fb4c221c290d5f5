/*
Package minion is a small multi-agent conversation runtime. Applications are
trees of agents with deterministic routing policies, tools and guardrails;
turns run against persistent sessions that carry a shared State and an
ordered event log.

# Concept

A Runner executes one turn at a time per session. The root agent of the
application decides, step by step, whether to answer, call a tool or
delegate to a child agent. Pipelines run stages in order and hand data
between them through State keys. Every step is recorded as an Event, and
the last event of a successful turn is the terminal answer.

The package is laid out hexagonally: stores, transports (HTTP, MCP) and
terminal rendering are adapters around the core packages in pkg/.

# Usage

	engine, err := minion.New(minion.WithBuiltinApps(apps.Deps{}))
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	res, err := engine.RunTurn(ctx, runner.TurnRequest{
		AppName:   "weather",
		UserID:    "u1",
		SessionID: "s1",
		Input:     "What's the weather in Tokyo?",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.FinalText)

Applications can also be declared in YAML or JSON files and loaded with
WithAppDefinitions; see package appdef for the format.
*/
package minion
