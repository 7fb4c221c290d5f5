package main

import (
	"os"
	"strings"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/femto/minion-novel/pkg/runner"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <app> <input...>",
	Short: "Run a single turn and print the answer",
	Long: `Runs one turn of <app> with the remaining arguments as the user message.
Use a persistent store (--store file or redis) to continue the session later.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		user, _ := cmd.Flags().GetString("user")
		session, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.RunTurn(sigCtx, rt, cli.TurnOptions{
			Request: runner.TurnRequest{
				AppName:   args[0],
				UserID:    user,
				SessionID: session,
				Input:     strings.Join(args[1:], " "),
			},
			JSON: jsonMode,
		}, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("user", "local", "User id of the session")
	runCmd.Flags().String("session", "default", "Session id")
	runCmd.Flags().Bool("json", false, "Print the whole turn result as JSON")
}
