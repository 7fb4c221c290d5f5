package main

import (
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <app>",
	Short: "Export the agent tree of an app",
	Long: `Outputs a Mermaid diagram (graph TD) of the agents, pipelines and tools of
<app>. With --session, the agents that answered in that session are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		user, _ := cmd.Flags().GetString("user")
		session, _ := cmd.Flags().GetString("session")
		return cli.PrintGraph(cmd.Context(), rt, args[0], user, session, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("user", "local", "User id of the session")
	graphCmd.Flags().String("session", "", "Highlight the agents of this session")
}
