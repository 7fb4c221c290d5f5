package minion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/runner"
)

// Console runs an interactive chat loop against one session using the
// provided IO. This allows for easy testing and integration with different
// frontends.
type Console struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
	Events   EventFormatter
}

// ContentRenderer transforms an answer before it is printed, e.g. markdown
// to ANSI, without coupling the core package to a terminal library.
type ContentRenderer func(string) (string, error)

// EventFormatter turns a non-final event into a single line. An empty line
// is skipped. A nil formatter hides intermediate events.
type EventFormatter func(*domain.Event) string

// Run reads one message per line and runs it as a turn on key until EOF,
// "exit" or "quit". Turn errors are reported and the loop goes on; only
// IO errors and context cancellation end it early.
func (c *Console) Run(ctx context.Context, engine *Engine, key domain.SessionKey) error {
	if c.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if c.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	lines := bufio.NewReader(c.Input)
	w := c.Output

	if !c.Headless {
		fmt.Fprintf(w, "--- %s (session %s) ---\n", key.AppName, key.SessionID)
	}

	for {
		if !c.Headless {
			fmt.Fprint(w, "> ")
		}
		text, err := lines.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)
		eof := err != nil

		switch {
		case input == "exit" || input == "quit":
			if !c.Headless {
				fmt.Fprintln(w, "Bye!")
			}
			return nil
		case input == "":
			if eof {
				return nil
			}
			continue
		}

		if err := c.turn(ctx, engine, key, input); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

func (c *Console) turn(ctx context.Context, engine *Engine, key domain.SessionKey, input string) error {
	req := runner.TurnRequest{AppName: key.AppName, UserID: key.UserID, SessionID: key.SessionID, Input: input}
	for ev, err := range engine.Stream(ctx, req) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(c.Output, "error: %v\n", err)
			return nil
		}
		if !ev.Final {
			if c.Events != nil {
				if line := c.Events(ev); line != "" {
					fmt.Fprintln(c.Output, line)
				}
			}
			continue
		}
		out := ev.Text
		if c.Renderer != nil {
			if rendered, err := c.Renderer(out); err == nil {
				out = rendered
			}
		}
		fmt.Fprintln(c.Output, strings.TrimSpace(out))
	}
	return nil
}
