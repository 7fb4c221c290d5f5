// Package greeting provides the hello and goodbye tools.
package greeting

import (
	"context"
	"fmt"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
)

// Tool names.
const (
	HelloName   = "say_hello"
	GoodbyeName = "say_goodbye"
)

// HelloArgs are the arguments of say_hello.
type HelloArgs struct {
	Name string `json:"name"`
}

// Hello greets the user by name, or "there" when no name is given.
func Hello() tool.Tool {
	return tool.Typed(HelloName, "Provides a simple, friendly greeting.",
		func(ctx context.Context, in HelloArgs, state domain.State) (any, error) {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				name = "there"
			}
			return fmt.Sprintf("Hello, %s!", name), nil
		},
		tool.WithParameters(tool.Object(map[string]any{
			"name": tool.Property("string", "The name of the person to greet."),
		})),
	)
}

// Goodbye returns a polite farewell.
func Goodbye() tool.Tool {
	return tool.New(GoodbyeName, "Provides a simple farewell message to conclude the conversation.",
		func(ctx context.Context, args map[string]any, state domain.State) (any, error) {
			return "Goodbye! Have a great day.", nil
		})
}
