// Package appdef loads applications declared in YAML and compiles them into
// agent trees.
//
//	apps:
//	  - name: helpdesk
//	    root:
//	      name: helpdesk_root
//	      tools: [say_hello, calculate]
//	      routes:
//	        - {name: math, regex: '(\d+)\s*\+\s*(\d+)', tool: calculate, args: {operation: add, a: "$1", b: "$2"}}
//	      fallback: "I can help with greetings and math."
//
// Route arguments may reference regex captures as $1..$9 and the whole
// message as $input.
package appdef

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/femto/minion-novel/pkg/adapters/process"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition wraps every load and compile error.
var ErrInvalidDefinition = errors.New("invalid app definition")

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the top-level document.
type File struct {
	// Tools declares external commands usable by the apps of this file.
	Tools []process.Config `yaml:"tools" json:"tools" validate:"dive"`
	Apps  []AppDef         `yaml:"apps" json:"apps" validate:"required,min=1,dive"`
}

// AppDef declares one application. Exactly one of Root and Pipeline is set.
type AppDef struct {
	Name         string         `yaml:"name" json:"name" validate:"required"`
	Description  string         `yaml:"description" json:"description"`
	InitialState map[string]any `yaml:"initial_state" json:"initial_state"`
	Root         *NodeDef       `yaml:"root" json:"root" validate:"required_without=Pipeline,excluded_with=Pipeline"`
	Pipeline     *PipelineDef   `yaml:"pipeline" json:"pipeline"`
}

// NodeDef declares an agent node with a routing table.
type NodeDef struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description"`
	Instruction string `yaml:"instruction" json:"instruction"`
	OutputKey   string `yaml:"output_key" json:"output_key"`
	MaxSteps    int    `yaml:"max_steps" json:"max_steps" validate:"gte=0"`

	Tools      []string      `yaml:"tools" json:"tools"`
	Guardrails GuardrailsDef `yaml:"guardrails" json:"guardrails"`
	Routes     []RouteDef    `yaml:"routes" json:"routes" validate:"dive"`
	// Fallback is answered when no route matches.
	Fallback string `yaml:"fallback" json:"fallback"`
	// AnswerTemplate renders the answer after a tool ran; {{result}} is
	// the formatted result and {{tool}} the tool name.
	AnswerTemplate string `yaml:"answer_template" json:"answer_template"`

	Children  []NodeDef     `yaml:"children" json:"children" validate:"dive"`
	Pipelines []PipelineDef `yaml:"pipelines" json:"pipelines" validate:"dive"`
}

// GuardrailsDef declares the guardrails of a node.
type GuardrailsDef struct {
	Keywords []KeywordGuardDef `yaml:"keywords" json:"keywords" validate:"dive"`
	ToolArgs []ToolArgGuardDef `yaml:"tool_args" json:"tool_args" validate:"dive"`
}

// KeywordGuardDef blocks messages containing Keyword.
type KeywordGuardDef struct {
	Keyword string `yaml:"keyword" json:"keyword" validate:"required"`
	Flag    string `yaml:"flag" json:"flag"`
}

// ToolArgGuardDef blocks calls of Tool whose Arg is one of Values.
type ToolArgGuardDef struct {
	Tool    string   `yaml:"tool" json:"tool" validate:"required"`
	Arg     string   `yaml:"arg" json:"arg" validate:"required"`
	Values  []string `yaml:"values" json:"values" validate:"required,min=1"`
	Flag    string   `yaml:"flag" json:"flag"`
	Message string   `yaml:"message" json:"message"`
}

// RouteDef is one routing table entry. Keywords, Regex or Always selects
// messages; Tool or Delegate is what happens.
type RouteDef struct {
	Name     string         `yaml:"name" json:"name" validate:"required"`
	Keywords []string       `yaml:"keywords" json:"keywords"`
	Regex    string         `yaml:"regex" json:"regex"`
	Always   bool           `yaml:"always" json:"always"`
	Tool     string         `yaml:"tool" json:"tool" validate:"required_without=Delegate,excluded_with=Delegate"`
	Args     map[string]any `yaml:"args" json:"args"`
	Delegate string         `yaml:"delegate" json:"delegate"`
}

// PipelineDef declares a sequential pipeline.
type PipelineDef struct {
	Name        string     `yaml:"name" json:"name" validate:"required"`
	Description string     `yaml:"description" json:"description"`
	Stages      []StageDef `yaml:"stages" json:"stages" validate:"required,min=1,dive"`
}

// StageDef is one pipeline stage.
type StageDef struct {
	Agent  NodeDef  `yaml:"agent" json:"agent"`
	Reads  []string `yaml:"reads" json:"reads"`
	Writes string   `yaml:"writes" json:"writes"`
}

// Load reads a definition file. Files ending in .json are decoded as JSON,
// anything else as YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app definitions: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidDefinition, path, err)
		}
		return &f, check(&f)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse yaml: %v", ErrInvalidDefinition, err)
	}
	if err := check(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func check(f *File) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, describe(err))
	}
	seen := make(map[string]bool, len(f.Apps))
	for _, a := range f.Apps {
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate app %q", ErrInvalidDefinition, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
