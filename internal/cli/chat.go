package cli

import (
	"fmt"
	"io"

	minion "github.com/femto/minion-novel"
	"github.com/femto/minion-novel/internal/presentation/tui"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/muesli/termenv"
)

// ChatOptions configures an interactive chat session.
type ChatOptions struct {
	App       string
	UserID    string
	SessionID string
	Input     io.Reader
	Output    io.Writer
	// Terminal enables the banner, prompts, colors and markdown rendering.
	Terminal bool
	// Width wraps rendered answers; zero disables wrapping.
	Width int
	// Quiet hides tool and delegation lines.
	Quiet bool
}

// Chat runs the interactive loop until EOF, "exit" or a signal.
func Chat(sigCtx *SignalContext, rt *Runtime, opts ChatOptions) error {
	key := domain.NewSessionKey(opts.App, opts.UserID, opts.SessionID)
	if err := key.Validate(); err != nil {
		return err
	}

	profile := termenv.Ascii
	var renderer tui.Renderer = tui.Plain
	if opts.Terminal {
		profile = termenv.NewOutput(opts.Output).EnvColorProfile()
		renderer = tui.NewRenderer(opts.Width)
		tui.PrintBanner(opts.Output, minion.Version)
	}

	if sess, err := rt.Engine.Sessions().Load(sigCtx, key); err == nil {
		rt.Logger.Info("Session Resumed", "session", key.String(), "events", len(sess.Events))
		if opts.Terminal {
			printSystemMessage(opts.Output, "Resuming session '%s' (%d events).", key.SessionID, len(sess.Events))
		}
	}

	console := &minion.Console{
		Input:    NewInterruptibleReader(opts.Input, sigCtx.Done()),
		Output:   opts.Output,
		Headless: !opts.Terminal,
		Renderer: minion.ContentRenderer(renderer),
	}
	if !opts.Quiet {
		console.Events = func(ev *domain.Event) string {
			return tui.EventLine(profile, ev)
		}
	}

	err := console.Run(sigCtx, rt.Engine, key)
	if sig := sigCtx.Signal(); sig != nil && opts.Terminal {
		fmt.Fprintln(opts.Output)
		printSystemMessage(opts.Output, "Interrupted (%s).", sig)
	}
	return handleExecutionError(err)
}
