package agent

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
)

// DecisionKind tags a Decision.
type DecisionKind int

const (
	DecisionAnswer DecisionKind = iota + 1
	DecisionCallTool
	DecisionDelegate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAnswer:
		return "answer"
	case DecisionCallTool:
		return "call_tool"
	case DecisionDelegate:
		return "delegate"
	}
	return "unknown"
}

// Decision is what a policy chooses to do next.
type Decision struct {
	Kind DecisionKind

	Text string // answer

	Tool string // call_tool
	Args map[string]any

	Child   string // delegate
	Message string
}

// Answer replies directly.
func Answer(text string) Decision {
	return Decision{Kind: DecisionAnswer, Text: text}
}

// CallTool invokes one of the node's tools.
func CallTool(name string, args map[string]any) Decision {
	return Decision{Kind: DecisionCallTool, Tool: name, Args: args}
}

// Delegate hands the turn to a child. An empty message forwards the
// node's own message.
func Delegate(child, message string) Decision {
	return Decision{Kind: DecisionDelegate, Child: child, Message: message}
}

// Exchange is a tool call made by the node during the turn and its result.
type Exchange struct {
	Call   domain.ToolCall
	Result domain.Result
}

// Request is everything a policy may look at.
type Request struct {
	Agent       string
	Instruction string
	Message     string
	State       domain.StateView
	Tools       []domain.ToolSpec
	Children    []domain.AgentSpec
	History     []Exchange
}

// LastExchange returns the most recent tool exchange of the turn.
func (r *Request) LastExchange() (Exchange, bool) {
	if len(r.History) == 0 {
		return Exchange{}, false
	}
	return r.History[len(r.History)-1], true
}

// Policy picks the node's next step.
type Policy interface {
	Decide(ctx context.Context, req *Request) (Decision, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, req *Request) (Decision, error)

func (f PolicyFunc) Decide(ctx context.Context, req *Request) (Decision, error) {
	return f(ctx, req)
}
