package appdef

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/femto/minion-novel/pkg/adapters/process"
	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/apps"
	"github.com/femto/minion-novel/pkg/tool"
)

var placeholder = regexp.MustCompile(`\$(input|\d)`)

// Compile builds the apps of f. Tool names resolve against the commands
// declared in f first, then against reg.
func Compile(f *File, reg *tool.Registry, opts ...process.Option) ([]apps.App, error) {
	c := &compiler{shared: reg, local: tool.NewRegistry()}
	for _, cfg := range f.Tools {
		pt, err := process.New(cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
		c.local.Register(pt)
	}

	out := make([]apps.App, 0, len(f.Apps))
	for _, def := range f.Apps {
		var (
			root agent.Agent
			err  error
		)
		if def.Pipeline != nil {
			root, err = c.pipeline(*def.Pipeline)
		} else {
			root, err = c.node(*def.Root)
		}
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", def.Name, err)
		}
		if err := agent.ValidateTree(root); err != nil {
			return nil, fmt.Errorf("%w: app %s: %v", ErrInvalidDefinition, def.Name, err)
		}
		out = append(out, apps.App{
			Name:         def.Name,
			Description:  def.Description,
			Root:         root,
			InitialState: def.InitialState,
		})
	}
	return out, nil
}

// LoadApps is Load followed by Compile.
func LoadApps(path string, reg *tool.Registry, opts ...process.Option) ([]apps.App, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(f, reg, opts...)
}

type compiler struct {
	shared *tool.Registry
	local  *tool.Registry
}

func (c *compiler) tool(name string) (tool.Tool, error) {
	if t, ok := c.local.Get(name); ok {
		return t, nil
	}
	if c.shared != nil {
		if t, ok := c.shared.Get(name); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: tool not found: %s", ErrInvalidDefinition, name)
}

func (c *compiler) node(def NodeDef) (*agent.Node, error) {
	tools := make([]tool.Tool, 0, len(def.Tools))
	offered := make(map[string]bool, len(def.Tools))
	for _, name := range def.Tools {
		t, err := c.tool(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
		offered[name] = true
	}

	children := make([]agent.Agent, 0, len(def.Children)+len(def.Pipelines))
	names := make(map[string]bool)
	for _, cd := range def.Children {
		child, err := c.node(cd)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		names[child.Name()] = true
	}
	for _, pd := range def.Pipelines {
		child, err := c.pipeline(pd)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		names[child.Name()] = true
	}

	routes := make([]agent.Route, 0, len(def.Routes))
	for _, rd := range def.Routes {
		r, err := route(rd)
		if err != nil {
			return nil, fmt.Errorf("%w: %s route %s: %v", ErrInvalidDefinition, def.Name, rd.Name, err)
		}
		switch {
		case rd.Delegate != "" && !names[rd.Delegate]:
			return nil, fmt.Errorf("%w: %s route %s delegates to unknown child %q", ErrInvalidDefinition, def.Name, rd.Name, rd.Delegate)
		case rd.Tool != "" && !offered[rd.Tool]:
			return nil, fmt.Errorf("%w: %s route %s calls %q which is not in its tools", ErrInvalidDefinition, def.Name, rd.Name, rd.Tool)
		}
		routes = append(routes, r)
	}

	policy := &agent.RoutingPolicy{Routes: routes}
	if def.Fallback != "" {
		d := agent.Answer(def.Fallback)
		policy.Fallback = &d
	}
	if def.AnswerTemplate != "" {
		policy.AfterTool = template(def.AnswerTemplate)
	}

	opts := []agent.Option{
		agent.WithDescription(def.Description),
		agent.WithInstruction(def.Instruction),
		agent.WithTools(tools...),
		agent.WithChildren(children...),
		agent.WithOutputKey(def.OutputKey),
		agent.WithPolicy(policy),
	}
	if def.MaxSteps > 0 {
		opts = append(opts, agent.WithMaxSteps(def.MaxSteps))
	}
	for _, g := range def.Guardrails.Keywords {
		opts = append(opts, agent.WithInputGuardrail(agent.KeywordGuardrail(g.Keyword, g.Flag)))
	}
	for _, g := range def.Guardrails.ToolArgs {
		opts = append(opts, agent.WithToolGuardrail(agent.ToolArgGuardrail(g.Tool, g.Arg, g.Values, g.Flag, g.Message)))
	}

	n, err := agent.NewNode(def.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return n, nil
}

func (c *compiler) pipeline(def PipelineDef) (*agent.Pipeline, error) {
	stages := make([]agent.Stage, 0, len(def.Stages))
	for _, sd := range def.Stages {
		n, err := c.node(sd.Agent)
		if err != nil {
			return nil, err
		}
		stages = append(stages, agent.Stage{Agent: n, Reads: sd.Reads, Writes: sd.Writes})
	}
	p, err := agent.NewPipeline(def.Name, stages, agent.WithPipelineDescription(def.Description))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return p, nil
}

func route(rd RouteDef) (agent.Route, error) {
	var m agent.Matcher
	set := 0
	if len(rd.Keywords) > 0 {
		m = agent.Keywords(rd.Keywords...)
		set++
	}
	if rd.Regex != "" {
		re, err := agent.Regex(rd.Regex)
		if err != nil {
			return agent.Route{}, err
		}
		m = re
		set++
	}
	if rd.Always {
		m = agent.Always()
		set++
	}
	if set != 1 {
		return agent.Route{}, fmt.Errorf("exactly one of keywords, regex or always is required")
	}

	action := agent.Action{Tool: rd.Tool, Delegate: rd.Delegate}
	if rd.Tool != "" {
		action.Args = substitute(rd.Args)
	}
	return agent.Route{Name: rd.Name, Match: m, Action: action}, nil
}

// substitute resolves $N and $input inside string arguments, nested
// maps and lists included.
func substitute(args map[string]any) agent.ArgsFunc {
	return func(message string, groups []string) map[string]any {
		out := make(map[string]any, len(args))
		for k, v := range args {
			out[k] = expand(v, message, groups)
		}
		return out
	}
}

func expand(v any, message string, groups []string) any {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(ref string) string {
			name := ref[1:]
			if name == "input" {
				return message
			}
			i, _ := strconv.Atoi(name)
			if i < len(groups) {
				return strings.TrimSpace(groups[i])
			}
			return ""
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expand(item, message, groups)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expand(item, message, groups)
		}
		return out
	default:
		return v
	}
}

func template(tmpl string) agent.Formatter {
	return func(ex agent.Exchange) string {
		return strings.NewReplacer(
			"{{result}}", agent.FormatResult(ex),
			"{{tool}}", ex.Call.Name,
		).Replace(tmpl)
	}
}
