package tui

import (
	"bytes"
	"testing"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestEventLine(t *testing.T) {
	p := termenv.Ascii

	tests := []struct {
		name string
		ev   *domain.Event
		want string
	}{
		{"tool call", &domain.Event{Kind: domain.EventToolCall, ToolCall: &domain.ToolCall{Name: "get_weather", Args: map[string]any{"city": "London", "a": 1}}}, "→ get_weather (a=1, city=London)"},
		{"tool ok", &domain.Event{Kind: domain.EventToolResult, ToolResult: &domain.ToolResult{Name: "get_weather", Result: domain.OK("x")}}, "← get_weather ok"},
		{"tool failed", &domain.Event{Kind: domain.EventToolResult, ToolResult: &domain.ToolResult{Name: "get_weather", Result: domain.Fail("no city")}}, "✗ get_weather: no city"},
		{"delegation", &domain.Event{Kind: domain.EventDelegation, Delegation: &domain.Delegation{From: "root", To: "greeter"}}, "⇢ root → greeter"},
		{"inner answer", &domain.Event{Kind: domain.EventAnswer, Author: "outline", Text: "line one\nline two"}, "· outline: line one …"},
		{"final answer", &domain.Event{Kind: domain.EventAnswer, Text: "done", Final: true}, ""},
		{"user message", &domain.Event{Kind: domain.EventUserMessage, Text: "hi"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventLine(p, tt.ev))
		})
	}
}

func TestFailureLine(t *testing.T) {
	assert.Empty(t, FailureLine(termenv.Ascii, nil))
	assert.Equal(t, "[tool_failure] boom", FailureLine(termenv.Ascii, domain.NewFailure(domain.ToolFailure, "a", "boom")))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
	assert.Contains(t, buf.String(), "|_| |_| |_|_|_| |_|_|\\___/|_| |_|")
}

func TestPlain(t *testing.T) {
	out, err := Plain("hello\n\n")
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}
