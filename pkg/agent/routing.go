package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrNoRoute is returned by RoutingPolicy when nothing matches and no
// fallback is set.
var ErrNoRoute = errors.New("no route matches the message")

// Matcher selects messages. Groups are the regex captures, or the whole
// message for keyword matches.
type Matcher interface {
	Match(message string) (groups []string, ok bool)
}

type keywords []string

// Keywords matches when the message contains any of words (case-insensitive).
func Keywords(words ...string) Matcher {
	out := make(keywords, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(strings.ToLower(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func (k keywords) Match(message string) ([]string, bool) {
	lower := strings.ToLower(message)
	for _, w := range k {
		if strings.Contains(lower, w) {
			return []string{message}, true
		}
	}
	return nil, false
}

type pattern struct {
	re *regexp.Regexp
}

// Regex matches messages against expr. Matching is case-insensitive unless
// expr sets its own flags.
func Regex(expr string) (Matcher, error) {
	if !strings.HasPrefix(expr, "(?") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid route pattern: %w", err)
	}
	return pattern{re: re}, nil
}

// MustRegex is Regex for package-level tables.
func MustRegex(expr string) Matcher {
	m, err := Regex(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (p pattern) Match(message string) ([]string, bool) {
	groups := p.re.FindStringSubmatch(message)
	if groups == nil {
		return nil, false
	}
	return groups, true
}

// Always matches every message.
func Always() Matcher {
	return always{}
}

type always struct{}

func (always) Match(message string) ([]string, bool) { return []string{message}, true }

// ArgsFunc builds tool arguments from the matched message.
type ArgsFunc func(message string, groups []string) map[string]any

// StaticArgs ignores the message.
func StaticArgs(args map[string]any) ArgsFunc {
	return func(string, []string) map[string]any {
		out := make(map[string]any, len(args))
		for k, v := range args {
			out[k] = v
		}
		return out
	}
}

// Action is what a matched route does: call Tool or delegate to Delegate.
type Action struct {
	Tool     string
	Args     ArgsFunc
	Delegate string
}

// Route is one entry of a routing table.
type Route struct {
	Name   string
	Match  Matcher
	Action Action
}

// Formatter renders a tool exchange as the node's answer.
type Formatter func(Exchange) string

// RoutingPolicy is a deterministic policy driven by an ordered routing table.
// Once a tool has returned, it answers with AfterTool.
type RoutingPolicy struct {
	Routes    []Route
	AfterTool Formatter
	Fallback  *Decision
}

var _ Policy = (*RoutingPolicy)(nil)

func (p *RoutingPolicy) Decide(_ context.Context, req *Request) (Decision, error) {
	if ex, ok := req.LastExchange(); ok {
		format := p.AfterTool
		if format == nil {
			format = FormatResult
		}
		return Answer(format(ex)), nil
	}

	for _, r := range p.Routes {
		if r.Match == nil {
			continue
		}
		groups, ok := r.Match.Match(req.Message)
		if !ok {
			continue
		}
		if r.Action.Delegate != "" {
			return Delegate(r.Action.Delegate, ""), nil
		}
		var args map[string]any
		if r.Action.Args != nil {
			args = r.Action.Args(req.Message, groups)
		}
		return CallTool(r.Action.Tool, args), nil
	}

	if p.Fallback != nil {
		return *p.Fallback, nil
	}
	return Decision{}, ErrNoRoute
}

// FormatResult renders a tool result as text. Strings are used verbatim;
// maps contribute their "report", "result" or "message" entry when present.
func FormatResult(ex Exchange) string {
	return formatValue(ex.Result.Data)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		for _, k := range []string{"report", "result", "message"} {
			if s, ok := val[k].(string); ok {
				return s
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, val[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// ToolSummary is a Formatter that prefixes the tool name.
func ToolSummary(ex Exchange) string {
	return fmt.Sprintf("%s: %s", ex.Call.Name, FormatResult(ex))
}

