package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

// DefaultMaxSteps bounds the policy/tool loop of a node run.
const DefaultMaxSteps = 8

// ErrStreamClosed is returned once the event consumer stopped listening.
var ErrStreamClosed = errors.New("event stream closed")

var tracer = otel.Tracer("minion")

// Agent is a unit of the orchestration tree.
//
// Run returns the terminal event of the agent without emitting it; the
// caller decides whether it is final. A non-nil error means the run was
// interrupted (cancellation, closed stream). Domain failures are reported
// as terminal events carrying a Failure.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation, message string) (*domain.Event, error)
}

// Parent is implemented by agents that own other agents.
type Parent interface {
	SubAgents() []Agent
}

// Emitter receives every emitted event. Returning false stops the stream.
type Emitter func(*domain.Event) bool

// Invocation is the per-turn context shared by every agent of the tree.
type Invocation struct {
	ID       string
	Session  *domain.Session
	Hooks    domain.LifecycleHooks
	Logger   *slog.Logger
	MaxSteps int

	emit   Emitter
	closed bool
}

// InvocationOption configures an Invocation.
type InvocationOption func(*Invocation)

// WithInvocationID sets the turn id. A random uuid is used otherwise.
func WithInvocationID(id string) InvocationOption {
	return func(inv *Invocation) {
		if id != "" {
			inv.ID = id
		}
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) InvocationOption {
	return func(inv *Invocation) {
		inv.Hooks = hooks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) InvocationOption {
	return func(inv *Invocation) {
		if logger != nil {
			inv.Logger = logger
		}
	}
}

// WithInvocationMaxSteps sets the default step bound for nodes.
func WithInvocationMaxSteps(n int) InvocationOption {
	return func(inv *Invocation) {
		if n > 0 {
			inv.MaxSteps = n
		}
	}
}

// WithEmitter forwards emitted events to fn.
func WithEmitter(fn Emitter) InvocationOption {
	return func(inv *Invocation) {
		inv.emit = fn
	}
}

// NewInvocation starts a turn on session.
func NewInvocation(session *domain.Session, opts ...InvocationOption) *Invocation {
	inv := &Invocation{
		ID:       uuid.NewString(),
		Session:  session,
		Logger:   logging.NewNop(),
		MaxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// State returns the live session state.
func (inv *Invocation) State() domain.State {
	return inv.Session.State
}

// Emit records ev in the session log and forwards it to the consumer.
// It stamps the event id, invocation id and timestamp when unset.
func (inv *Invocation) Emit(ev *domain.Event) error {
	if inv.closed {
		return ErrStreamClosed
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.InvocationID = inv.ID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	inv.Session.Append(ev)

	if inv.emit != nil && !inv.emit(ev.Clone()) {
		inv.closed = true
		return ErrStreamClosed
	}
	return nil
}

// Commit writes value under key and fires OnStateCommit. It returns the
// delta to record on the committing event.
func (inv *Invocation) Commit(ctx context.Context, agent, key string, value any) map[string]any {
	inv.Session.State.Set(key, value)
	inv.Logger.Debug("state committed", "agent", agent, "key", key)
	if inv.Hooks.OnStateCommit != nil {
		inv.Hooks.OnStateCommit(ctx, &domain.CommitEvent{InvocationID: inv.ID, Agent: agent, Key: key})
	}
	return map[string]any{key: value}
}

func (inv *Invocation) enter(ctx context.Context, agent, kind string) {
	if inv.Hooks.OnAgentEnter != nil {
		inv.Hooks.OnAgentEnter(ctx, &domain.AgentEvent{InvocationID: inv.ID, Agent: agent, Kind: kind})
	}
}

func (inv *Invocation) leave(ctx context.Context, agent, kind string, terminal *domain.Event) {
	if inv.Hooks.OnAgentLeave != nil {
		inv.Hooks.OnAgentLeave(ctx, &domain.AgentEvent{InvocationID: inv.ID, Agent: agent, Kind: kind, Terminal: terminal})
	}
}

func (inv *Invocation) toolCall(ctx context.Context, agent string, call domain.ToolCall) {
	if inv.Hooks.OnToolCall != nil {
		inv.Hooks.OnToolCall(ctx, &domain.ToolEvent{InvocationID: inv.ID, Agent: agent, Call: call})
	}
}

func (inv *Invocation) toolReturn(ctx context.Context, agent string, call domain.ToolCall, res domain.Result, d time.Duration) {
	if inv.Hooks.OnToolReturn != nil {
		inv.Hooks.OnToolReturn(ctx, &domain.ToolEvent{InvocationID: inv.ID, Agent: agent, Call: call, Result: &res, Duration: d})
	}
}

func (inv *Invocation) blocked(ctx context.Context, agent, guardrail, reason string) {
	if inv.Hooks.OnBlocked != nil {
		inv.Hooks.OnBlocked(ctx, &domain.GuardrailEvent{InvocationID: inv.ID, Agent: agent, Guardrail: guardrail, Reason: reason})
	}
}
