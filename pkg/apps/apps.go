// Package apps holds the built-in applications. Each one is an agent tree
// with deterministic routing policies plus the state its sessions start with.
package apps

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/tools/research"
	"golang.org/x/time/rate"
)

// App is a registrable application.
type App struct {
	Name         string
	Description  string
	Root         agent.Agent
	InitialState map[string]any
}

// Registrar is implemented by the runner.
type Registrar interface {
	Register(app string, root agent.Agent) error
	SetInitialState(app string, state map[string]any)
}

// Register adds every app to r.
func Register(r Registrar, apps ...App) error {
	for _, a := range apps {
		if err := r.Register(a.Name, a.Root); err != nil {
			return err
		}
		if a.InitialState != nil {
			r.SetInitialState(a.Name, a.InitialState)
		}
	}
	return nil
}

// Deps are the collaborators of the built-in apps. Every field is optional.
type Deps struct {
	// Store enables the load_memory tool of the weather app.
	Store ports.SessionStore
	// Searcher backs research web searches. Without one, every query
	// degrades to a fallback result.
	Searcher research.Searcher
	// SearchLimiter throttles research web searches.
	SearchLimiter *rate.Limiter
	// MaxResults bounds research results per query.
	MaxResults int
	Logger     *slog.Logger
}

// Builtin builds all built-in apps.
func Builtin(deps Deps) ([]App, error) {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	builders := []func(Deps) (App, error){
		Weather,
		Calculator,
		Novel,
		Research,
	}
	out := make([]App, 0, len(builders))
	for _, build := range builders {
		a, err := build(deps)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the app named name.
func Find(apps []App, name string) (App, error) {
	for _, a := range apps {
		if a.Name == name {
			return a, nil
		}
	}
	return App{}, fmt.Errorf("app %q not found", name)
}
