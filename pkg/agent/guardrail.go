package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
)

// Verdict is the outcome of a guardrail check.
type Verdict struct {
	Blocked bool
	Message string
	// Flag, when set, is stored as true in State on a block.
	Flag string
}

// Allow lets the request through.
func Allow() Verdict {
	return Verdict{}
}

// Block vetoes the request with message, recording flag in State.
func Block(message, flag string) Verdict {
	return Verdict{Blocked: true, Message: message, Flag: flag}
}

// InputGuardrail inspects the request before the policy runs.
type InputGuardrail interface {
	Name() string
	Check(ctx context.Context, req *Request) Verdict
}

// ToolGuardrail inspects a tool call before the tool runs.
type ToolGuardrail interface {
	Name() string
	Check(ctx context.Context, agent string, call domain.ToolCall, state domain.StateView) Verdict
}

// InputGuardrailFunc adapts a function to InputGuardrail.
type InputGuardrailFunc func(ctx context.Context, req *Request) Verdict

func (f InputGuardrailFunc) Name() string { return "input_guardrail" }

func (f InputGuardrailFunc) Check(ctx context.Context, req *Request) Verdict {
	return f(ctx, req)
}

// ToolGuardrailFunc adapts a function to ToolGuardrail.
type ToolGuardrailFunc func(ctx context.Context, agent string, call domain.ToolCall, state domain.StateView) Verdict

func (f ToolGuardrailFunc) Name() string { return "tool_guardrail" }

func (f ToolGuardrailFunc) Check(ctx context.Context, agent string, call domain.ToolCall, state domain.StateView) Verdict {
	return f(ctx, agent, call, state)
}

type keywordGuardrail struct {
	keyword string
	flag    string
	message string
}

// KeywordGuardrail blocks messages containing keyword (case-insensitive).
func KeywordGuardrail(keyword, flag string) InputGuardrail {
	return &keywordGuardrail{
		keyword: keyword,
		flag:    flag,
		message: fmt.Sprintf("I cannot process this request because it contains the blocked keyword '%s'.", keyword),
	}
}

func (g *keywordGuardrail) Name() string { return "keyword:" + g.keyword }

func (g *keywordGuardrail) Check(_ context.Context, req *Request) Verdict {
	if g.keyword != "" && strings.Contains(strings.ToLower(req.Message), strings.ToLower(g.keyword)) {
		return Block(g.message, g.flag)
	}
	return Allow()
}

type toolArgGuardrail struct {
	tool    string
	arg     string
	values  []string
	flag    string
	message string
}

// ToolArgGuardrail blocks calls to tool whose arg equals one of values
// (case-insensitive).
func ToolArgGuardrail(tool, arg string, values []string, flag, message string) ToolGuardrail {
	if message == "" {
		message = fmt.Sprintf("Policy restriction: %s with %s %v is disabled.", tool, arg, values)
	}
	return &toolArgGuardrail{tool: tool, arg: arg, values: values, flag: flag, message: message}
}

func (g *toolArgGuardrail) Name() string { return "tool_arg:" + g.tool + "." + g.arg }

func (g *toolArgGuardrail) Check(_ context.Context, _ string, call domain.ToolCall, _ domain.StateView) Verdict {
	if call.Name != g.tool {
		return Allow()
	}
	got := strings.TrimSpace(fmt.Sprint(call.Args[g.arg]))
	for _, v := range g.values {
		if strings.EqualFold(got, v) {
			return Block(g.message, g.flag)
		}
	}
	return Allow()
}
