package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/femto/minion-novel/pkg/runner"
)

// TurnOptions configures a single non-interactive turn.
type TurnOptions struct {
	Request runner.TurnRequest
	// JSON prints the whole turn result instead of the final text.
	JSON bool
}

// RunTurn executes one turn and prints its outcome to w. A turn that ends in
// a failure still prints its text; the failure is only visible in JSON mode.
func RunTurn(ctx context.Context, rt *Runtime, opts TurnOptions, w io.Writer) error {
	res, err := rt.Engine.RunTurn(ctx, opts.Request)
	if err != nil {
		return err
	}
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(w, res.FinalText)
	return err
}
