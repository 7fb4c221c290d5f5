package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/femto/minion-novel/internal/logging"
	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnknownApp is returned for turns against an unregistered app.
	ErrUnknownApp = errors.New("unknown app")
	// ErrNoTerminal is returned when a turn ended without a terminal event.
	ErrNoTerminal = errors.New("turn ended without a terminal event")
)

// UserAuthor is the author of user message events.
const UserAuthor = "user"

var tracer = otel.Tracer("minion")

// TurnRequest is one user input addressed to a session.
type TurnRequest struct {
	AppName   string
	UserID    string
	SessionID string
	Input     string
}

// Key returns the session key of the request.
func (r TurnRequest) Key() domain.SessionKey {
	return domain.NewSessionKey(r.AppName, r.UserID, r.SessionID)
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Key          domain.SessionKey `json:"key"`
	InvocationID string            `json:"invocation_id"`
	FinalText    string            `json:"final_text"`
	Events       []*domain.Event   `json:"events"`
	Failure      *domain.Failure   `json:"failure,omitempty"`
}

// Runner executes turns against registered apps. Turns on the same session
// are serialized by the session manager; different sessions run in parallel.
type Runner struct {
	sessions   *session.Manager
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	maxSteps   int
	inputLimit int
	initial    map[string]map[string]any

	mu   sync.RWMutex
	apps map[string]agent.Agent
}

// New creates a Runner over the session manager.
func New(sessions *session.Manager, opts ...Option) *Runner {
	r := &Runner{
		sessions: sessions,
		logger:   logging.NewNop(),
		maxSteps: agent.DefaultMaxSteps,
		initial:  make(map[string]map[string]any),
		apps:     make(map[string]agent.Agent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes root the agent tree of app. The tree is validated first.
func (r *Runner) Register(app string, root agent.Agent) error {
	if app == "" {
		return fmt.Errorf("%w: app name is required", ErrUnknownApp)
	}
	if err := agent.ValidateTree(root); err != nil {
		return fmt.Errorf("register %s: %w", app, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app] = root
	return nil
}

// SetInitialState seeds new sessions of app with state.
func (r *Runner) SetInitialState(app string, state map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initial[app] = state
}

// Apps lists the registered apps in lexical order.
func (r *Runner) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Agent returns the root agent of app.
func (r *Runner) Agent(app string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apps[app]
	return a, ok
}

// Sessions returns the session manager.
func (r *Runner) Sessions() *session.Manager {
	return r.sessions
}

// RunTurn executes one turn and returns its events and final answer.
func (r *Runner) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return r.run(ctx, req, func(*domain.Event) bool { return true })
}

// Stream executes one turn, yielding events as they happen. The last event
// yielded on success is the terminal one, marked Final. Breaking out of the
// loop stops the turn; what was already applied to State is kept.
func (r *Runner) Stream(ctx context.Context, req TurnRequest) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		stopped := false
		_, err := r.run(ctx, req, func(ev *domain.Event) bool {
			if !yield(ev, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

func (r *Runner) run(ctx context.Context, req TurnRequest, yield agent.Emitter) (*TurnResult, error) {
	root, ok := r.Agent(req.AppName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, req.AppName)
	}
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	input, err := SanitizeInputLimit(req.Input, r.inputLimit)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	initial := r.initial[req.AppName]
	r.mu.RUnlock()

	invID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "turn", trace.WithAttributes(
		attribute.String("app", key.AppName),
		attribute.String("user", key.UserID),
		attribute.String("session", key.SessionID),
		attribute.String("invocation_id", invID),
	))
	defer span.End()

	result := &TurnResult{Key: key, InvocationID: invID}
	turn := &domain.TurnEvent{Key: key, InvocationID: invID, Input: input}
	if r.hooks.OnTurnStart != nil {
		r.hooks.OnTurnStart(ctx, turn)
	}
	r.logger.Debug("turn started", "session", key.String(), "invocation_id", invID)
	start := time.Now()

	terminal := false
	err = r.sessions.Turn(ctx, key, initial, func(ctx context.Context, sess *domain.Session) error {
		inv := agent.NewInvocation(sess,
			agent.WithInvocationID(invID),
			agent.WithHooks(r.hooks),
			agent.WithLogger(r.logger),
			agent.WithInvocationMaxSteps(r.maxSteps),
			agent.WithEmitter(func(ev *domain.Event) bool {
				result.Events = append(result.Events, ev)
				return yield(ev)
			}),
		)

		if err := inv.Emit(&domain.Event{Author: UserAuthor, Kind: domain.EventUserMessage, Text: input}); err != nil {
			return err
		}

		final, err := root.Run(ctx, inv, input)
		if err != nil {
			return err
		}
		if !final.Terminal() {
			return ErrNoTerminal
		}
		final.Final = true
		terminal = true
		result.FinalText = final.Text
		result.Failure = final.Failure
		return inv.Emit(final)
	})

	turn.FinalText = result.FinalText
	turn.Failure = result.Failure
	turn.Duration = time.Since(start)
	if err != nil && !terminal && !errors.Is(err, ErrNoTerminal) {
		err = fmt.Errorf("%w: %w", ErrNoTerminal, err)
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("turn aborted", "session", key.String(), "invocation_id", invID, "err", err)
	case result.Failure != nil:
		span.SetStatus(codes.Error, result.Failure.Reason)
		r.logger.Info("turn failed", "session", key.String(), "kind", result.Failure.Kind, "reason", result.Failure.Reason)
	default:
		r.logger.Debug("turn completed", "session", key.String(), "duration", turn.Duration)
	}
	turn.Err = err
	if r.hooks.OnTurnEnd != nil {
		r.hooks.OnTurnEnd(ctx, turn)
	}

	return result, err
}
