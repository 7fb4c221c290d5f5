package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/femto/minion-novel/pkg/domain"
)

// Registry manages the available tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Lookup resolves several tools, failing on the first unknown name.
func (r *Registry) Lookup(names ...string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Names returns the registered tool names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the catalog of registered tools.
func (r *Registry) Specs() []domain.ToolSpec {
	names := r.Names()
	specs := make([]domain.ToolSpec, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			specs = append(specs, Spec(t))
		}
	}
	return specs
}

// Execute looks up a tool by name and invokes it.
// An unknown name is a Failure, not an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, state domain.State) domain.Result {
	t, ok := r.Get(name)
	if !ok {
		return domain.Failf("tool not found: %s", name)
	}
	return Invoke(ctx, t, args, state)
}
