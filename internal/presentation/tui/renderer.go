package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns an answer into terminal output.
type Renderer func(string) (string, error)

// NewRenderer returns a glamour markdown renderer that adapts to the
// terminal background. It falls back to Plain if glamour cannot start.
func NewRenderer(width int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Plain returns the answer unchanged, with a trailing newline.
func Plain(text string) (string, error) {
	return strings.TrimRight(text, "\n") + "\n", nil
}
