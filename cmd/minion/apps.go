package main

import (
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/spf13/cobra"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the registered apps",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		cli.ListApps(rt, os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(appsCmd)
}
