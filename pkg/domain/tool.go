package domain

import "fmt"

// ResultStatus tags a tool Result.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailure ResultStatus = "failure"
)

// Result is the structured outcome of a tool invocation:
// either Success{Data} or Failure{Reason}.
type Result struct {
	Status ResultStatus `json:"status" yaml:"status"`
	Data   any          `json:"data,omitempty" yaml:"data,omitempty"`
	Reason string       `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// OK builds a successful Result.
func OK(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// Fail builds a failed Result with a human-readable reason.
func Fail(reason string) Result {
	return Result{Status: StatusFailure, Reason: reason}
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// Failed reports whether the result is a Failure.
func (r Result) Failed() bool {
	return r.Status != StatusSuccess
}

// ToolCall represents a request from an agent to execute a tool.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ToolResult pairs a Result with the call that produced it.
type ToolResult struct {
	CallID string `json:"call_id" yaml:"call_id"`
	Name   string `json:"name" yaml:"name"`
	Result `yaml:",inline"`
}

// ToolSpec describes a tool offered to a policy.
type ToolSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"` // JSON Schema object
}

// AgentSpec describes a child agent offered to a policy.
type AgentSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}
