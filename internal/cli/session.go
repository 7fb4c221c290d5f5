package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ListSessions prints the keys of the stored sessions matching filter.
func ListSessions(ctx context.Context, rt *Runtime, filter ports.ListFilter, w io.Writer) error {
	keys, err := rt.Engine.Sessions().List(ctx, filter)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	fmt.Fprintln(w, "Sessions:")
	for _, k := range keys {
		fmt.Fprintln(w, "- "+k.String())
	}
	return nil
}

// InspectSession prints a session as YAML.
func InspectSession(ctx context.Context, rt *Runtime, key domain.SessionKey, w io.Writer) error {
	sess, err := rt.Engine.Sessions().Load(ctx, key)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", key, err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sess); err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	return enc.Close()
}

// RemoveSessions deletes every key, reporting each outcome. It returns the
// joined errors of the deletions that failed.
func RemoveSessions(ctx context.Context, rt *Runtime, keys []domain.SessionKey, w io.Writer) error {
	var errs []error
	for _, key := range keys {
		if err := rt.Engine.Sessions().Delete(ctx, key); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", key, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", key)
	}
	return errors.Join(errs...)
}

// ListApps prints the registered apps with their descriptions.
func ListApps(rt *Runtime, w io.Writer) {
	for _, a := range rt.Engine.Apps() {
		if a.Description == "" {
			fmt.Fprintln(w, a.Name)
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", a.Name, a.Description)
	}
}
