package minion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/adapters/process"
	"github.com/femto/minion-novel/pkg/appdef"
	"github.com/femto/minion-novel/pkg/apps"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/femto/minion-novel/pkg/tool"
)

// Engine is the high-level entry point of the library. It wires a session
// store, a session manager and a runner, and registers applications.
type Engine struct {
	runner   *runner.Runner
	store    ports.SessionStore
	tools    *tool.Registry
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	locker   ports.DistributedLocker
	lockTTL  time.Duration
	maxSteps int
	limit    int

	apps        []apps.App
	builtin     *apps.Deps
	definitions []string
	extraTools  []tool.Tool
	closers     []io.Closer
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the session store. Defaults to an in-memory store.
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker coordinates turns across processes sharing a store.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls merge.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.MergeHooks(e.hooks, hooks)
	}
}

// WithMaxSteps bounds the policy/tool loop of every node.
func WithMaxSteps(steps int) Option {
	return func(e *Engine) {
		e.maxSteps = steps
	}
}

// WithInputLimit sets the maximum turn input size in bytes.
func WithInputLimit(limit int) Option {
	return func(e *Engine) {
		e.limit = limit
	}
}

// WithApps registers applications built by the caller.
func WithApps(list ...apps.App) Option {
	return func(e *Engine) {
		e.apps = append(e.apps, list...)
	}
}

// WithBuiltinApps registers the weather, calculator, novel and research
// apps. A nil deps.Store is replaced by the engine store.
func WithBuiltinApps(deps apps.Deps) Option {
	return func(e *Engine) {
		e.builtin = &deps
	}
}

// WithAppDefinitions loads apps from definition files. Their tool
// references resolve against the built-in tools and WithTools.
func WithAppDefinitions(paths ...string) Option {
	return func(e *Engine) {
		e.definitions = append(e.definitions, paths...)
	}
}

// WithTools makes extra tools available to app definitions.
func WithTools(tools ...tool.Tool) Option {
	return func(e *Engine) {
		e.extraTools = append(e.extraTools, tools...)
	}
}

// WithCloser registers a resource released by Close, such as a store client.
func WithCloser(c io.Closer) Option {
	return func(e *Engine) {
		e.closers = append(e.closers, c)
	}
}

// New initializes an Engine and registers every configured app.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	sessOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(eng.locker))
		if eng.lockTTL > 0 {
			sessOpts = append(sessOpts, session.WithLockTTL(eng.lockTTL))
		}
	}
	runOpts := []runner.Option{
		runner.WithLogger(eng.logger),
		runner.WithHooks(eng.hooks),
	}
	if eng.maxSteps > 0 {
		runOpts = append(runOpts, runner.WithMaxSteps(eng.maxSteps))
	}
	if eng.limit > 0 {
		runOpts = append(runOpts, runner.WithInputLimit(eng.limit))
	}
	eng.runner = runner.New(session.NewManager(eng.store, sessOpts...), runOpts...)

	deps := apps.Deps{Store: eng.store, Logger: eng.logger}
	if eng.builtin != nil {
		deps = *eng.builtin
		if deps.Store == nil {
			deps.Store = eng.store
		}
		if deps.Logger == nil {
			deps.Logger = eng.logger
		}
	}
	eng.tools = apps.ToolRegistry(deps)
	for _, t := range eng.extraTools {
		eng.tools.Register(t)
	}

	all := append([]apps.App(nil), eng.apps...)
	if eng.builtin != nil {
		builtin, err := apps.Builtin(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build builtin apps: %w", err)
		}
		all = append(all, builtin...)
	}
	for _, path := range eng.definitions {
		defined, err := appdef.LoadApps(path, eng.tools, process.WithBaseDir(filepath.Dir(path)))
		if err != nil {
			return nil, fmt.Errorf("failed to load apps from %s: %w", path, err)
		}
		eng.logger.Debug("app definitions loaded", "path", path, "apps", len(defined))
		all = append(all, defined...)
	}

	seen := make(map[string]bool, len(all))
	for _, a := range all {
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate app %q", a.Name)
		}
		seen[a.Name] = true
	}
	if err := apps.Register(eng.runner, all...); err != nil {
		return nil, err
	}
	eng.apps = all
	return eng, nil
}

// RunTurn executes one turn and returns its events and final answer.
func (e *Engine) RunTurn(ctx context.Context, req runner.TurnRequest) (*runner.TurnResult, error) {
	return e.runner.RunTurn(ctx, req)
}

// Stream executes one turn, yielding events as they happen.
func (e *Engine) Stream(ctx context.Context, req runner.TurnRequest) iter.Seq2[*domain.Event, error] {
	return e.runner.Stream(ctx, req)
}

// Runner returns the underlying runner, for transport adapters.
func (e *Engine) Runner() *runner.Runner {
	return e.runner
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.runner.Sessions()
}

// Tools returns the tools available to app definitions.
func (e *Engine) Tools() *tool.Registry {
	return e.tools
}

// Apps returns the registered applications in registration order.
func (e *Engine) Apps() []apps.App {
	return append([]apps.App(nil), e.apps...)
}

// Close releases the resources registered with WithCloser.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
