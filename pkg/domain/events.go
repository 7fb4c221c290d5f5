package domain

import (
	"context"
	"time"
)

// EventKind defines the category of a session event.
type EventKind string

const (
	EventUserMessage EventKind = "user_message"
	EventToolCall    EventKind = "tool_call"
	EventToolResult  EventKind = "tool_result"
	EventDelegation  EventKind = "delegation"

	// Terminal kinds. A node run ends with exactly one of these.
	EventAnswer  EventKind = "answer"
	EventAdopted EventKind = "adopted_answer"
	EventBlocked EventKind = "blocked"
)

// Terminal reports whether the kind ends an agent run.
func (k EventKind) Terminal() bool {
	return k == EventAnswer || k == EventAdopted || k == EventBlocked
}

// Delegation describes a hand-off from a parent agent to a child.
type Delegation struct {
	From    string `json:"from" yaml:"from"`
	To      string `json:"to" yaml:"to"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Event is one atomic record of interaction within a session.
type Event struct {
	ID           string         `json:"id" yaml:"id"`
	InvocationID string         `json:"invocation_id" yaml:"invocation_id"`
	Author       string         `json:"author" yaml:"author"`
	Kind         EventKind      `json:"kind" yaml:"kind"`
	Text         string         `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCall     *ToolCall      `json:"tool_call,omitempty" yaml:"tool_call,omitempty"`
	ToolResult   *ToolResult    `json:"tool_result,omitempty" yaml:"tool_result,omitempty"`
	Delegation   *Delegation    `json:"delegation,omitempty" yaml:"delegation,omitempty"`
	StateDelta   map[string]any `json:"state_delta,omitempty" yaml:"state_delta,omitempty"`
	Failure      *Failure       `json:"failure,omitempty" yaml:"failure,omitempty"`
	Final        bool           `json:"final,omitempty" yaml:"final,omitempty"`
	Timestamp    time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Terminal reports whether the event ends an agent run.
func (e *Event) Terminal() bool {
	return e != nil && e.Kind.Terminal()
}

func (e Event) clone() Event {
	out := e
	if e.ToolCall != nil {
		tc := *e.ToolCall
		tc.Args, _ = deepCopyValue(e.ToolCall.Args).(map[string]any)
		out.ToolCall = &tc
	}
	if e.ToolResult != nil {
		tr := *e.ToolResult
		tr.Data = deepCopyValue(e.ToolResult.Data)
		out.ToolResult = &tr
	}
	if e.Delegation != nil {
		d := *e.Delegation
		out.Delegation = &d
	}
	if e.StateDelta != nil {
		out.StateDelta, _ = deepCopyValue(e.StateDelta).(map[string]any)
	}
	if e.Failure != nil {
		f := *e.Failure
		out.Failure = &f
	}
	return out
}

// Clone returns a detached copy of the event.
func (e *Event) Clone() *Event {
	c := e.clone()
	return &c
}

// TurnEvent describes the start or end of a runner turn.
type TurnEvent struct {
	Key          SessionKey
	InvocationID string
	Input        string
	FinalText    string
	Failure      *Failure
	Err          error // set when the turn aborted without a terminal event
	Duration     time.Duration
}

// AgentEvent describes entry into or exit from an agent.
type AgentEvent struct {
	InvocationID string
	Agent        string
	Kind         string // "node" or "pipeline"
	Terminal     *Event // set on leave
}

// ToolEvent describes a tool invocation.
type ToolEvent struct {
	InvocationID string
	Agent        string
	Call         ToolCall
	Result       *Result // set on return
	Duration     time.Duration
}

// GuardrailEvent describes a guardrail veto.
type GuardrailEvent struct {
	InvocationID string
	Agent        string
	Guardrail    string
	Reason       string
}

// CommitEvent describes an output commit to State.
type CommitEvent struct {
	InvocationID string
	Agent        string
	Key          string
}

// LifecycleHooks defines callbacks for runner observability.
// Every callback is optional.
type LifecycleHooks struct {
	OnTurnStart   func(context.Context, *TurnEvent)
	OnTurnEnd     func(context.Context, *TurnEvent)
	OnAgentEnter  func(context.Context, *AgentEvent)
	OnAgentLeave  func(context.Context, *AgentEvent)
	OnToolCall    func(context.Context, *ToolEvent)
	OnToolReturn  func(context.Context, *ToolEvent)
	OnBlocked     func(context.Context, *GuardrailEvent)
	OnStateCommit func(context.Context, *CommitEvent)
}

// MergeHooks combines hook sets; callbacks run in argument order.
func MergeHooks(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range sets {
		out.OnTurnStart = chain(out.OnTurnStart, h.OnTurnStart)
		out.OnTurnEnd = chain(out.OnTurnEnd, h.OnTurnEnd)
		out.OnAgentEnter = chain(out.OnAgentEnter, h.OnAgentEnter)
		out.OnAgentLeave = chain(out.OnAgentLeave, h.OnAgentLeave)
		out.OnToolCall = chain(out.OnToolCall, h.OnToolCall)
		out.OnToolReturn = chain(out.OnToolReturn, h.OnToolReturn)
		out.OnBlocked = chain(out.OnBlocked, h.OnBlocked)
		out.OnStateCommit = chain(out.OnStateCommit, h.OnStateCommit)
	}
	return out
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, ev T) {
		a(ctx, ev)
		b(ctx, ev)
	}
}
