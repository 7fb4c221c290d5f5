package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/femto/minion-novel/internal/presentation/graph"
	"github.com/femto/minion-novel/pkg/adapters/memory"
	"github.com/femto/minion-novel/pkg/adapters/process"
	"github.com/femto/minion-novel/pkg/appdef"
	"github.com/femto/minion-novel/pkg/apps"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/runner"
)

// PrintGraph writes the Mermaid diagram of app. When sessionID is set, the
// agents that answered in that session are highlighted.
func PrintGraph(ctx context.Context, rt *Runtime, app, userID, sessionID string, w io.Writer) error {
	root, ok := rt.Engine.Runner().Agent(app)
	if !ok {
		return fmt.Errorf("%w: %q", runner.ErrUnknownApp, app)
	}
	var overlay *graph.GraphOverlay
	if sessionID != "" {
		sess, err := rt.Engine.Sessions().Load(ctx, domain.NewSessionKey(app, userID, sessionID))
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", sessionID, err)
		}
		overlay = graph.OverlayFromSession(sess)
	}
	_, err := fmt.Fprint(w, graph.GenerateMermaid(root, overlay))
	return err
}

// ValidateDefinitions loads and compiles app definition files against the
// built-in tools and the commands of toolsPath, reporting each file.
func ValidateDefinitions(paths []string, toolsPath string, w io.Writer) error {
	reg := apps.ToolRegistry(apps.Deps{Store: memory.NewStore()})
	extra, err := loadProcessTools(toolsPath)
	if err != nil {
		return err
	}
	for _, t := range extra {
		reg.Register(t)
	}

	for _, path := range paths {
		defined, err := appdef.LoadApps(path, reg, process.WithBaseDir(filepath.Dir(path)))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		names := make([]string, len(defined))
		for i, a := range defined {
			names[i] = a.Name
		}
		fmt.Fprintf(w, "%s: %d app(s) %v\n", path, len(defined), names)
	}
	return nil
}
