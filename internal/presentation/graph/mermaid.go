package graph

import (
	"fmt"
	"strings"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	// VisitedAgents are the authors seen in a session's events.
	VisitedAgents []string
	// LastAgent is the author of the latest terminal event.
	LastAgent string
}

// OverlayFromSession collects the agents that authored events of sess.
func OverlayFromSession(sess *domain.Session) *GraphOverlay {
	o := &GraphOverlay{}
	seen := make(map[string]bool)
	for _, ev := range sess.Events {
		if ev.Author == "" || ev.Kind == domain.EventUserMessage {
			continue
		}
		if !seen[ev.Author] {
			seen[ev.Author] = true
			o.VisitedAgents = append(o.VisitedAgents, ev.Author)
		}
		if ev.Kind.Terminal() {
			o.LastAgent = ev.Author
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of an agent tree.
// It applies semantic styling:
// - Root: ((Circle))
// - Pipeline: [/Parallelogram/], stages chained in order
// - Tool: [[Subroutine]], linked with a dotted edge
// - Node: [Rectangle], delegations drawn as solid edges
// It also applies overlay styles (Visited/Last) if provided.
func GenerateMermaid(root agent.Agent, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	tools := make(map[string]bool)
	agent.Walk(root, func(a agent.Agent, depth int) {
		safeID := sanitizeMermaidID(a.Name())

		opener, closer := "[", "]"
		switch {
		case depth == 0:
			opener, closer = "((", "))"
		case isPipeline(a):
			opener, closer = "[/", "/]"
		}
		label := a.Name()
		if ok, key := outputKey(a); ok {
			label = fmt.Sprintf("%s <br/> → %s", a.Name(), key)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		switch v := a.(type) {
		case *agent.Pipeline:
			prev := safeID
			for i, st := range v.Stages() {
				to := sanitizeMermaidID(st.Agent.Name())
				arrow := "-->"
				if i > 0 {
					arrow = fmt.Sprintf("-- \"%d\" -->", i+1)
				}
				sb.WriteString(fmt.Sprintf("    %s %s %s\n", prev, arrow, to))
				prev = to
			}
		case *agent.Node:
			for _, spec := range v.Tools() {
				toolID := "tool_" + sanitizeMermaidID(spec.Name)
				if !tools[toolID] {
					tools[toolID] = true
					sb.WriteString(fmt.Sprintf("    %s[[\"%s\"]]\n", toolID, spec.Name))
				}
				sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", safeID, toolID))
			}
			for _, child := range v.SubAgents() {
				sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(child.Name())))
			}
		}
	})

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedAgents {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.LastAgent != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.LastAgent)))
		}
	}

	return sb.String()
}

func isPipeline(a agent.Agent) bool {
	_, ok := a.(*agent.Pipeline)
	return ok
}

func outputKey(a agent.Agent) (bool, string) {
	k, ok := a.(agent.OutputKeyer)
	if !ok || k.OutputKey() == "" {
		return false, ""
	}
	return true, k.OutputKey()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
