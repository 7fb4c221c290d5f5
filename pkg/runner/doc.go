/*
Package runner executes conversational turns against registered agent trees.

A turn loads (or creates) the session addressed by (app, user, session),
records the user message, runs the app's root agent and emits its terminal
event as the final one. The session is saved when the turn ends, also when
it was cancelled, so state committed before the interruption is kept.

# Usage

	mgr := session.NewManager(memory.NewStore())
	r := runner.New(mgr, runner.WithLogger(logger))
	if err := r.Register("weather", root); err != nil {
		return err
	}

	res, err := r.RunTurn(ctx, runner.TurnRequest{
		AppName: "weather", UserID: "u1", SessionID: "s1",
		Input: "What's the weather in London?",
	})

	for ev, err := range r.Stream(ctx, req) {
		...
	}
*/
package runner
