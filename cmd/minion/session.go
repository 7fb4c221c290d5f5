package main

import (
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent sessions",
	Long: `List, inspect, and remove sessions in the configured store. Sessions are
addressed as app/user/session.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		app, _ := cmd.Flags().GetString("app")
		user, _ := cmd.Flags().GetString("user")
		return cli.ListSessions(cmd.Context(), rt, ports.ListFilter{AppName: app, UserID: user}, os.Stdout)
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <app/user/session>",
	Short: "Print the state and events of a session as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := domain.ParseSessionKey(args[0])
		if err != nil {
			return err
		}
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		return cli.InspectSession(cmd.Context(), rt, key, os.Stdout)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <app/user/session>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]domain.SessionKey, 0, len(args))
		for _, arg := range args {
			key, err := domain.ParseSessionKey(arg)
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		return cli.RemoveSessions(cmd.Context(), rt, keys, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)

	sessionLsCmd.Flags().String("app", "", "Only sessions of this app")
	sessionLsCmd.Flags().String("user", "", "Only sessions of this user")
}
