package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidSessionKey is returned when a session triple is incomplete or malformed.
var ErrInvalidSessionKey = errors.New("invalid session key")

// Failure taxonomy sentinels. A *Failure matches the sentinel of its kind
// under errors.Is.
var (
	ErrToolFailure          = errors.New("tool failure")
	ErrPolicyFailure        = errors.New("policy failure")
	ErrGuardrailBlock       = errors.New("guardrail block")
	ErrPipelineStageFailure = errors.New("pipeline stage failure")
)

// FailureKind classifies a turn failure.
type FailureKind string

const (
	// ToolFailure: a tool ran but reported a domain error.
	ToolFailure FailureKind = "tool_failure"
	// PolicyFailure: the policy could not produce a valid decision.
	PolicyFailure FailureKind = "policy_failure"
	// GuardrailBlock: an interception predicate vetoed the request.
	GuardrailBlock FailureKind = "guardrail_block"
	// PipelineStageFailure: a pipeline stage produced no usable output.
	PipelineStageFailure FailureKind = "pipeline_stage_failure"
)

// Failure is attached to terminal events that did not succeed.
type Failure struct {
	Kind   FailureKind `json:"kind" yaml:"kind"`
	Agent  string      `json:"agent,omitempty" yaml:"agent,omitempty"`
	Stage  string      `json:"stage,omitempty" yaml:"stage,omitempty"`
	Source string      `json:"source,omitempty" yaml:"source,omitempty"` // tool or guardrail name
	Reason string      `json:"reason" yaml:"reason"`
}

// NewFailure builds a Failure of the given kind.
func NewFailure(kind FailureKind, agent, reason string) *Failure {
	return &Failure{Kind: kind, Agent: agent, Reason: reason}
}

func (f *Failure) Error() string {
	if f.Agent == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
	}
	return fmt.Sprintf("%s in %s: %s", f.Kind, f.Agent, f.Reason)
}

// Is matches the taxonomy sentinels.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrToolFailure:
		return f.Kind == ToolFailure
	case ErrPolicyFailure:
		return f.Kind == PolicyFailure
	case ErrGuardrailBlock:
		return f.Kind == GuardrailBlock
	case ErrPipelineStageFailure:
		return f.Kind == PipelineStageFailure
	}
	return false
}
