package tool

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
)

// Tool is a single capability an agent can call.
//
// Invoke must report domain errors as a Failure result instead of panicking
// or returning an error. Side effects on state are applied before Invoke returns.
type Tool interface {
	Name() string
	Description() string
	// Parameters describes the arguments as a JSON Schema object.
	Parameters() map[string]any
	Invoke(ctx context.Context, args map[string]any, state domain.State) domain.Result
}

// Spec returns the catalog entry for t.
func Spec(t Tool) domain.ToolSpec {
	return domain.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// Invoke is the call boundary between orchestration and tools.
// A panicking tool or a cancelled context yields a Failure; nothing escapes.
func Invoke(ctx context.Context, t Tool, args map[string]any, state domain.State) (res domain.Result) {
	if err := ctx.Err(); err != nil {
		return domain.Failf("cancelled before %s ran: %v", t.Name(), err)
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			res = domain.Failf("internal error in %s: %v", t.Name(), r)
		}
	}()

	res = t.Invoke(ctx, args, state)
	if res.Status == "" {
		res.Status = domain.StatusSuccess
	}
	return res
}

// HandlerFunc implements a tool body. A returned error becomes a Failure.
type HandlerFunc func(ctx context.Context, args map[string]any, state domain.State) (any, error)

// Func adapts a HandlerFunc to the Tool interface.
type Func struct {
	name        string
	description string
	parameters  map[string]any
	handler     HandlerFunc
}

var _ Tool = (*Func)(nil)

// Option configures a Func.
type Option func(*Func)

// WithParameters sets the JSON Schema of the arguments.
func WithParameters(schema map[string]any) Option {
	return func(f *Func) {
		f.parameters = schema
	}
}

// New creates a Tool from a handler.
func New(name, description string, handler HandlerFunc, opts ...Option) *Func {
	f := &Func{
		name:        name,
		description: description,
		handler:     handler,
		parameters:  Object(nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Func) Name() string               { return f.name }
func (f *Func) Description() string        { return f.description }
func (f *Func) Parameters() map[string]any { return f.parameters }

// Invoke runs the handler and maps its outcome onto a Result.
func (f *Func) Invoke(ctx context.Context, args map[string]any, state domain.State) domain.Result {
	data, err := f.handler(ctx, args, state)
	if err != nil {
		return domain.Fail(err.Error())
	}
	if r, ok := data.(domain.Result); ok {
		return r
	}
	return domain.OK(data)
}

// Object builds a JSON Schema object from property schemas.
// Required properties are listed in required.
func Object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Property builds a single-property schema.
func Property(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// Enum builds a string property restricted to values.
func Enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}
