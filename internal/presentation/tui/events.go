package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/muesli/termenv"
)

// EventLine renders a non-final event as one dimmed status line. It
// returns "" for events that are shown as answers or not at all.
func EventLine(p termenv.Profile, ev *domain.Event) string {
	var line string
	switch ev.Kind {
	case domain.EventToolCall:
		if ev.ToolCall == nil {
			return ""
		}
		line = fmt.Sprintf("→ %s %s", ev.ToolCall.Name, formatArgs(ev.ToolCall.Args))
	case domain.EventToolResult:
		if ev.ToolResult == nil {
			return ""
		}
		if ev.ToolResult.Failed() {
			return p.String(fmt.Sprintf("✗ %s: %s", ev.ToolResult.Name, ev.ToolResult.Reason)).
				Foreground(p.Color("#fb7185")).String()
		}
		line = fmt.Sprintf("← %s ok", ev.ToolResult.Name)
	case domain.EventDelegation:
		if ev.Delegation == nil {
			return ""
		}
		line = fmt.Sprintf("⇢ %s → %s", ev.Delegation.From, ev.Delegation.To)
	case domain.EventAnswer, domain.EventAdopted:
		if ev.Final || ev.Text == "" {
			return ""
		}
		line = fmt.Sprintf("· %s: %s", ev.Author, firstLine(ev.Text))
	default:
		return ""
	}
	return p.String(line).Faint().String()
}

// FailureLine renders the failure of a final event, or "".
func FailureLine(p termenv.Profile, f *domain.Failure) string {
	if f == nil {
		return ""
	}
	return p.String(fmt.Sprintf("[%s] %s", f.Kind, f.Reason)).Foreground(p.Color("#fbbf24")).String()
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
