package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NoRouteText is the answer given when the policy cannot handle a message.
const NoRouteText = "Sorry, I can't help with that request."

// ErrInvalidAgent is returned when an agent is misconfigured.
var ErrInvalidAgent = errors.New("invalid agent")

// Node is an agent driven by a Policy over a set of tools and children.
// A Node is immutable once built.
type Node struct {
	name        string
	description string
	instruction string
	outputKey   string
	policy      Policy
	maxSteps    int

	tools      []tool.Tool
	toolIndex  map[string]tool.Tool
	children   []Agent
	childIndex map[string]Agent

	inputGuards []InputGuardrail
	toolGuards  []ToolGuardrail
}

var (
	_ Agent  = (*Node)(nil)
	_ Parent = (*Node)(nil)
)

// Option configures a Node.
type Option func(*Node)

// WithDescription sets the description shown to parent policies.
func WithDescription(desc string) Option {
	return func(n *Node) { n.description = desc }
}

// WithInstruction sets the instruction handed to the policy.
func WithInstruction(instruction string) Option {
	return func(n *Node) { n.instruction = instruction }
}

// WithTools adds tools the policy may call.
func WithTools(tools ...tool.Tool) Option {
	return func(n *Node) { n.tools = append(n.tools, tools...) }
}

// WithChildren adds agents the policy may delegate to.
func WithChildren(children ...Agent) Option {
	return func(n *Node) { n.children = append(n.children, children...) }
}

// WithOutputKey commits successful answers to State under key.
func WithOutputKey(key string) Option {
	return func(n *Node) { n.outputKey = key }
}

// WithPolicy sets the decision policy.
func WithPolicy(p Policy) Option {
	return func(n *Node) { n.policy = p }
}

// WithMaxSteps overrides the invocation step bound for this node.
func WithMaxSteps(steps int) Option {
	return func(n *Node) { n.maxSteps = steps }
}

// WithInputGuardrail adds a check run before the policy.
func WithInputGuardrail(g ...InputGuardrail) Option {
	return func(n *Node) { n.inputGuards = append(n.inputGuards, g...) }
}

// WithToolGuardrail adds a check run before every tool call.
func WithToolGuardrail(g ...ToolGuardrail) Option {
	return func(n *Node) { n.toolGuards = append(n.toolGuards, g...) }
}

// NewNode builds a node.
func NewNode(name string, opts ...Option) (*Node, error) {
	n := &Node{name: strings.TrimSpace(name)}
	for _, opt := range opts {
		opt(n)
	}

	if n.name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAgent)
	}
	if n.policy == nil {
		return nil, fmt.Errorf("%w: %s has no policy", ErrInvalidAgent, n.name)
	}

	n.toolIndex = make(map[string]tool.Tool, len(n.tools))
	for _, t := range n.tools {
		if t == nil {
			return nil, fmt.Errorf("%w: %s has a nil tool", ErrInvalidAgent, n.name)
		}
		if _, dup := n.toolIndex[t.Name()]; dup {
			return nil, fmt.Errorf("%w: %s has duplicate tool %q", ErrInvalidAgent, n.name, t.Name())
		}
		n.toolIndex[t.Name()] = t
	}

	n.childIndex = make(map[string]Agent, len(n.children))
	for _, c := range n.children {
		if c == nil {
			return nil, fmt.Errorf("%w: %s has a nil child", ErrInvalidAgent, n.name)
		}
		if _, dup := n.childIndex[c.Name()]; dup {
			return nil, fmt.Errorf("%w: %s has duplicate child %q", ErrInvalidAgent, n.name, c.Name())
		}
		n.childIndex[c.Name()] = c
	}
	return n, nil
}

// MustNode is NewNode for static trees.
func MustNode(name string, opts ...Option) *Node {
	n, err := NewNode(name, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Node) Name() string        { return n.name }
func (n *Node) Description() string { return n.description }
func (n *Node) OutputKey() string   { return n.outputKey }

// Tools describes the tools the node offers its policy.
func (n *Node) Tools() []domain.ToolSpec { return n.toolSpecs() }

// SubAgents returns the children.
func (n *Node) SubAgents() []Agent {
	out := make([]Agent, len(n.children))
	copy(out, n.children)
	return out
}

// Run executes one node turn:
// guardrails, then policy steps (tool calls loop back to the policy),
// ending in an answer, a block or an adopted child answer.
func (n *Node) Run(ctx context.Context, inv *Invocation, message string) (*domain.Event, error) {
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", n.name),
		attribute.String("agent.kind", "node"),
	))
	defer span.End()

	inv.enter(ctx, n.name, "node")
	ev, err := n.run(ctx, inv, message)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case ev.Failure != nil:
		span.SetStatus(codes.Error, ev.Failure.Reason)
	}
	inv.leave(ctx, n.name, "node", ev)
	return ev, err
}

func (n *Node) run(ctx context.Context, inv *Invocation, message string) (*domain.Event, error) {
	req := &Request{
		Agent:       n.name,
		Instruction: n.instruction,
		Message:     message,
		State:       inv.State().Clone(),
		Tools:       n.toolSpecs(),
		Children:    n.childSpecs(),
	}

	for _, g := range n.inputGuards {
		if v := g.Check(ctx, req); v.Blocked {
			return n.block(ctx, inv, g.Name(), v), nil
		}
	}

	maxSteps := n.maxSteps
	if maxSteps <= 0 {
		maxSteps = inv.MaxSteps
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.State = inv.State().Clone()

		d, err := n.policy.Decide(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return n.policyFailure(err.Error()), nil
		}
		inv.Logger.Debug("policy decided", "agent", n.name, "step", step, "decision", d.Kind.String())

		switch d.Kind {
		case DecisionAnswer:
			if strings.TrimSpace(d.Text) == "" {
				return n.policyFailure("empty answer"), nil
			}
			return n.finish(ctx, inv, &domain.Event{Author: n.name, Kind: domain.EventAnswer, Text: d.Text}), nil

		case DecisionCallTool:
			ex, terminal, err := n.callTool(ctx, inv, d)
			if err != nil {
				return nil, err
			}
			if terminal != nil {
				return terminal, nil
			}
			req.History = append(req.History, ex)

		case DecisionDelegate:
			return n.delegate(ctx, inv, d, message)

		default:
			return n.policyFailure(fmt.Sprintf("unknown decision %q", d.Kind.String())), nil
		}
	}
	return n.policyFailure(fmt.Sprintf("exceeded %d steps", maxSteps)), nil
}

func (n *Node) callTool(ctx context.Context, inv *Invocation, d Decision) (Exchange, *domain.Event, error) {
	t, ok := n.toolIndex[d.Tool]
	if !ok {
		return Exchange{}, n.policyFailure("tool not found: " + d.Tool), nil
	}

	args := d.Args
	if args == nil {
		args = map[string]any{}
	}
	call := domain.ToolCall{ID: uuid.NewString(), Name: d.Tool, Args: args}

	for _, g := range n.toolGuards {
		if v := g.Check(ctx, n.name, call, inv.State().Clone()); v.Blocked {
			return Exchange{}, n.block(ctx, inv, g.Name(), v), nil
		}
	}

	if err := inv.Emit(&domain.Event{Author: n.name, Kind: domain.EventToolCall, ToolCall: &call}); err != nil {
		return Exchange{}, nil, err
	}
	inv.toolCall(ctx, n.name, call)

	before := inv.State().Clone()
	start := time.Now()
	tctx, span := tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	res := tool.Invoke(tctx, t, call.Args, inv.State())
	if res.Failed() {
		span.SetStatus(codes.Error, res.Reason)
	}
	span.End()
	elapsed := time.Since(start)

	inv.toolReturn(ctx, n.name, call, res, elapsed)
	inv.Logger.Debug("tool returned", "agent", n.name, "tool", call.Name, "status", res.Status, "duration", elapsed)

	result := &domain.ToolResult{CallID: call.ID, Name: call.Name, Result: res}
	ev := &domain.Event{
		Author:     n.name,
		Kind:       domain.EventToolResult,
		ToolResult: result,
		StateDelta: domain.DiffState(before, inv.State()),
	}
	if err := inv.Emit(ev); err != nil {
		return Exchange{}, nil, err
	}

	if res.Failed() {
		f := domain.NewFailure(domain.ToolFailure, n.name, res.Reason)
		f.Source = call.Name
		return Exchange{}, &domain.Event{
			Author:  n.name,
			Kind:    domain.EventAnswer,
			Text:    fmt.Sprintf("%s failed: %s", call.Name, res.Reason),
			Failure: f,
		}, nil
	}
	return Exchange{Call: call, Result: res}, nil, nil
}

func (n *Node) delegate(ctx context.Context, inv *Invocation, d Decision, message string) (*domain.Event, error) {
	child, ok := n.childIndex[d.Child]
	if !ok {
		return n.policyFailure("agent not found: " + d.Child), nil
	}
	msg := d.Message
	if msg == "" {
		msg = message
	}

	if err := inv.Emit(&domain.Event{
		Author:     n.name,
		Kind:       domain.EventDelegation,
		Delegation: &domain.Delegation{From: n.name, To: child.Name(), Message: msg},
	}); err != nil {
		return nil, err
	}

	answer, err := child.Run(ctx, inv, msg)
	if err != nil {
		return nil, err
	}
	if !answer.Terminal() {
		return n.policyFailure(fmt.Sprintf("agent %s produced no answer", child.Name())), nil
	}
	answer.Final = false
	if err := inv.Emit(answer); err != nil {
		return nil, err
	}

	adopted := &domain.Event{Author: n.name, Kind: domain.EventAdopted, Text: answer.Text}
	if answer.Failure != nil {
		f := *answer.Failure
		adopted.Failure = &f
		return adopted, nil
	}
	return n.finish(ctx, inv, adopted), nil
}

// finish commits a successful answer to the output key.
func (n *Node) finish(ctx context.Context, inv *Invocation, ev *domain.Event) *domain.Event {
	if n.outputKey != "" {
		ev.StateDelta = inv.Commit(ctx, n.name, n.outputKey, ev.Text)
	}
	return ev
}

func (n *Node) block(ctx context.Context, inv *Invocation, guardrail string, v Verdict) *domain.Event {
	f := domain.NewFailure(domain.GuardrailBlock, n.name, v.Message)
	f.Source = guardrail
	ev := &domain.Event{Author: n.name, Kind: domain.EventBlocked, Text: v.Message, Failure: f}
	if v.Flag != "" {
		inv.State().Set(v.Flag, true)
		ev.StateDelta = map[string]any{v.Flag: true}
	}
	inv.Logger.Info("request blocked", "agent", n.name, "guardrail", guardrail)
	inv.blocked(ctx, n.name, guardrail, v.Message)
	return ev
}

func (n *Node) policyFailure(reason string) *domain.Event {
	return &domain.Event{
		Author:  n.name,
		Kind:    domain.EventAnswer,
		Text:    NoRouteText,
		Failure: domain.NewFailure(domain.PolicyFailure, n.name, reason),
	}
}

func (n *Node) toolSpecs() []domain.ToolSpec {
	specs := make([]domain.ToolSpec, len(n.tools))
	for i, t := range n.tools {
		specs[i] = tool.Spec(t)
	}
	return specs
}

func (n *Node) childSpecs() []domain.AgentSpec {
	specs := make([]domain.AgentSpec, len(n.children))
	for i, c := range n.children {
		specs[i] = domain.AgentSpec{Name: c.Name(), Description: c.Description()}
	}
	return specs
}
