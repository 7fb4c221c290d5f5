package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	minion "github.com/femto/minion-novel"
	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/adapters/file"
	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/adapters/process"
	"github.com/femto/minion-novel/pkg/adapters/redis"
	"github.com/femto/minion-novel/pkg/apps"
	"github.com/femto/minion-novel/pkg/config"
	"github.com/femto/minion-novel/pkg/observability"
	"github.com/femto/minion-novel/pkg/persistence/middleware"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/femto/minion-novel/pkg/tools/research"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// Runtime is an Engine built from configuration, plus what the commands
// need around it.
type Runtime struct {
	Engine *minion.Engine
	Logger *slog.Logger
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry

	shutdownTracer observability.ShutdownFunc
}

// Close flushes traces and releases the store.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.shutdownTracer != nil {
		errs = append(errs, r.shutdownTracer(ctx))
	}
	errs = append(errs, r.Engine.Close())
	return errors.Join(errs...)
}

// NewRuntime initializes an Engine with standard CLI conventions: store and
// middleware from cfg.Store, builtin apps plus cfg.Apps definitions,
// logging and metrics hooks, and tracing when an endpoint is set.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{Logger: logger}

	tools, err := loadProcessTools(cfg.Apps.Tools)
	if err != nil {
		return nil, err
	}

	s, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := []minion.Option{
		minion.WithLogger(logger),
		minion.WithStore(s.store),
		minion.WithMaxSteps(cfg.Agent.MaxSteps),
		minion.WithInputLimit(cfg.Runner.InputLimit),
		minion.WithLifecycleHooks(observability.LoggingHooks(logger)),
		minion.WithBuiltinApps(builtinDeps(cfg.Research, logger)),
		minion.WithTools(tools...),
		minion.WithAppDefinitions(cfg.Apps.Definitions...),
	}
	if s.locker != nil {
		opts = append(opts, minion.WithLocker(s.locker, cfg.Session.LockTTL))
	}
	if s.closer != nil {
		opts = append(opts, minion.WithCloser(s.closer))
	}

	if cfg.Metrics.Enabled {
		rt.Registry = prometheus.NewRegistry()
		rt.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, minion.WithLifecycleHooks(observability.NewMetrics(rt.Registry).Hooks()))
	}

	rt.Engine, err = minion.New(opts...)
	if err != nil {
		if s.closer != nil {
			_ = s.closer.Close()
		}
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	rt.shutdownTracer, err = observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		_ = rt.Engine.Close()
		return nil, fmt.Errorf("error initializing tracing: %w", err)
	}

	logger.Debug("Runtime ready", "store", cfg.Store.Driver, "apps", len(rt.Engine.Apps()), "metrics", cfg.Metrics.Enabled)
	return rt, nil
}

type storeSetup struct {
	store  ports.SessionStore
	locker ports.DistributedLocker
	closer io.Closer
}

// createStore builds the configured session store and wraps it with the
// masking and encryption middleware.
func createStore(cfg *config.Config) (storeSetup, error) {
	var out storeSetup
	switch cfg.Store.Driver {
	case "", "memory":
		out.store = memory.NewStore()
	case "file":
		out.store = file.New(cfg.Store.Path)
	case "redis":
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		out.store = rs
		out.locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
		out.closer = rs
	default:
		return out, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Store.Driver)
	}

	var mws []middleware.Middleware
	if len(cfg.Store.MaskKeys) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.Store.MaskKeys)
		if err != nil {
			closeQuietly(out.closer)
			return storeSetup{}, fmt.Errorf("error configuring masking: %w", err)
		}
		mws = append(mws, mw)
	}
	active, fallback, err := cfg.Store.EncryptionKeys()
	if err == nil && active != nil {
		// Masking is outermost: values are masked before the session is sealed.
		var mw middleware.Middleware
		mw, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		mws = append(mws, mw)
	}
	if err != nil {
		closeQuietly(out.closer)
		return storeSetup{}, fmt.Errorf("error configuring encryption: %w", err)
	}
	out.store = middleware.Chain(out.store, mws...)
	return out, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// builtinDeps wires the research web search from configuration. Without an
// API key searches degrade to offline fallback results.
func builtinDeps(cfg config.ResearchConfig, logger *slog.Logger) apps.Deps {
	deps := apps.Deps{Logger: logger, MaxResults: cfg.MaxResults}
	if cfg.APIKey != "" {
		deps.Searcher = research.NewTavilyClient(cfg.Endpoint, cfg.APIKey)
	}
	if cfg.RatePerSecond > 0 {
		deps.SearchLimiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return deps
}

// loadProcessTools builds the external command tools of a tools.yaml.
// A missing file yields no tools.
func loadProcessTools(path string) ([]tool.Tool, error) {
	if path == "" {
		return nil, nil
	}
	configs, err := process.LoadTools(path)
	if err != nil {
		return nil, err
	}
	reg := tool.NewRegistry()
	if err := process.Register(reg, configs, process.WithBaseDir(filepath.Dir(path))); err != nil {
		return nil, err
	}
	out := make([]tool.Tool, 0, len(configs))
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		out = append(out, t)
	}
	return out, nil
}
