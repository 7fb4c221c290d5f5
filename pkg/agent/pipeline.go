package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage is one step of a Pipeline.
type Stage struct {
	Agent Agent
	// Reads lists the State keys that must exist before the stage runs.
	Reads []string
	// Writes is the State key receiving the stage output. It defaults to
	// the agent's output key.
	Writes string
}

// OutputKeyer is implemented by agents that commit their answer to State.
type OutputKeyer interface {
	OutputKey() string
}

// Pipeline runs its stages in order, each exactly once, and stops at the
// first stage that fails. Outputs committed by earlier stages are kept.
type Pipeline struct {
	name        string
	description string
	stages      []Stage
}

var (
	_ Agent       = (*Pipeline)(nil)
	_ Parent      = (*Pipeline)(nil)
	_ OutputKeyer = (*Pipeline)(nil)
)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineDescription sets the description shown to parent policies.
func WithPipelineDescription(desc string) PipelineOption {
	return func(p *Pipeline) { p.description = desc }
}

// NewPipeline builds a pipeline.
func NewPipeline(name string, stages []Stage, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{name: strings.TrimSpace(name)}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		return nil, fmt.Errorf("%w: pipeline name is required", ErrInvalidAgent)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: pipeline %s has no stages", ErrInvalidAgent, p.name)
	}

	seen := make(map[string]bool, len(stages))
	for i, st := range stages {
		if st.Agent == nil {
			return nil, fmt.Errorf("%w: pipeline %s stage %d has no agent", ErrInvalidAgent, p.name, i)
		}
		name := st.Agent.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: pipeline %s has duplicate stage %q", ErrInvalidAgent, p.name, name)
		}
		seen[name] = true

		own := ""
		if ok, isKeyer := st.Agent.(OutputKeyer); isKeyer {
			own = ok.OutputKey()
		}
		switch {
		case st.Writes == "":
			st.Writes = own
		case own != "" && own != st.Writes:
			return nil, fmt.Errorf("%w: stage %s writes %q but commits %q", ErrInvalidAgent, name, st.Writes, own)
		}
		if st.Writes == "" {
			return nil, fmt.Errorf("%w: stage %s has no output key", ErrInvalidAgent, name)
		}
		st.Reads = append([]string(nil), st.Reads...)
		p.stages = append(p.stages, st)
	}
	return p, nil
}

// MustPipeline is NewPipeline for static trees.
func MustPipeline(name string, stages []Stage, opts ...PipelineOption) *Pipeline {
	p, err := NewPipeline(name, stages, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pipeline) Name() string        { return p.name }
func (p *Pipeline) Description() string { return p.description }

// OutputKey is the key written by the last stage.
func (p *Pipeline) OutputKey() string {
	return p.stages[len(p.stages)-1].Writes
}

// Stages returns a copy of the stages with defaults applied.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// SubAgents returns the stage agents in order.
func (p *Pipeline) SubAgents() []Agent {
	out := make([]Agent, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.Agent
	}
	return out
}

// Run executes every stage with the pipeline's message. Each stage's answer
// is emitted as a non-final event and committed under its Writes key.
func (p *Pipeline) Run(ctx context.Context, inv *Invocation, message string) (*domain.Event, error) {
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", p.name),
		attribute.String("agent.kind", "pipeline"),
	))
	defer span.End()

	inv.enter(ctx, p.name, "pipeline")
	ev, err := p.run(ctx, inv, message)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case ev.Failure != nil:
		span.SetStatus(codes.Error, ev.Failure.Reason)
	}
	inv.leave(ctx, p.name, "pipeline", ev)
	return ev, err
}

func (p *Pipeline) run(ctx context.Context, inv *Invocation, message string) (*domain.Event, error) {
	var (
		delta map[string]any
		last  *domain.Event
	)
	for i, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := st.Agent.Name()

		for _, key := range st.Reads {
			if !inv.State().Has(key) {
				return p.stop(name, fmt.Sprintf("missing input %q", key), nil), nil
			}
		}

		inv.Logger.Debug("pipeline stage", "pipeline", p.name, "stage", name, "index", i)
		ev, err := st.Agent.Run(ctx, inv, message)
		if err != nil {
			return nil, err
		}
		if !ev.Terminal() {
			return p.stop(name, "no answer", nil), nil
		}
		ev.Final = false
		if err := inv.Emit(ev); err != nil {
			return nil, err
		}

		if ev.Failure != nil {
			return p.stop(name, ev.Failure.Reason, ev.Failure), nil
		}
		if strings.TrimSpace(ev.Text) == "" {
			return p.stop(name, "empty output", nil), nil
		}

		if _, committed := ev.StateDelta[st.Writes]; committed {
			delta = domain.MergeDelta(delta, ev.StateDelta)
		} else {
			delta = domain.MergeDelta(delta, inv.Commit(ctx, name, st.Writes, ev.Text))
		}
		last = ev
	}

	return &domain.Event{
		Author:     p.name,
		Kind:       domain.EventAdopted,
		Text:       last.Text,
		StateDelta: delta,
	}, nil
}

func (p *Pipeline) stop(stage, reason string, cause *domain.Failure) *domain.Event {
	f := &domain.Failure{Kind: domain.PipelineStageFailure, Agent: p.name, Stage: stage, Reason: reason}
	if cause != nil {
		f.Source = cause.Source
	}
	return &domain.Event{
		Author:  p.name,
		Kind:    domain.EventAnswer,
		Text:    fmt.Sprintf("Pipeline %s stopped at stage %s: %s", p.name, stage, reason),
		Failure: f,
	}
}
