package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
)

// ArgPrefix prefixes the environment variables carrying tool arguments.
const ArgPrefix = "MINION_ARG_"

var validArgName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Tool runs an allow-listed local command as a tool.
//
// Arguments are never passed as command-line flags. Each one becomes an
// environment variable MINION_ARG_<NAME>, which rules out flag injection.
// Stdout is the result; JSON output is decoded.
type Tool struct {
	cfg     Config
	baseDir string
	timeout time.Duration
}

var _ tool.Tool = (*Tool)(nil)

// Option configures a process Tool.
type Option func(*Tool)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(t *Tool) {
		t.baseDir = dir
	}
}

// New creates a tool for cfg.
func New(cfg Config, opts ...Option) (*Tool, error) {
	if cfg.Name == "" || cfg.Command == "" {
		return nil, fmt.Errorf("process tool needs a name and a command")
	}
	t := &Tool{cfg: cfg}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("process tool %s: invalid timeout: %w", cfg.Name, err)
		}
		t.timeout = d
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Register adds one tool per config entry to reg.
func Register(reg *tool.Registry, tools map[string]Config, opts ...Option) error {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t, err := New(tools[name], opts...)
		if err != nil {
			return err
		}
		reg.Register(t)
	}
	return nil
}

func (t *Tool) Name() string { return t.cfg.Name }

func (t *Tool) Description() string {
	if t.cfg.Description != "" {
		return t.cfg.Description
	}
	return "Runs " + t.cfg.Command
}

func (t *Tool) Parameters() map[string]any {
	return tool.Object(map[string]any{})
}

// Invoke executes the command.
func (t *Tool) Invoke(ctx context.Context, args map[string]any, _ domain.State) domain.Result {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	env, err := argEnv(args)
	if err != nil {
		return domain.Fail(err.Error())
	}

	cmd := exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range t.cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return domain.Failf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return domain.OK(decodeOutput(stdout.String()))
}

func argEnv(args map[string]any) ([]string, error) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		if !validArgName.MatchString(k) {
			return nil, fmt.Errorf("invalid argument name %q", k)
		}
		var val string
		switch v := args[k].(type) {
		case nil:
		case string, int, int64, float64, bool:
			val = fmt.Sprint(v)
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprint(v)
			}
		}
		env = append(env, ArgPrefix+strings.ToUpper(k)+"="+val)
	}
	return env, nil
}

// decodeOutput returns JSON objects and arrays decoded, anything else trimmed.
func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
