package main

import (
	"fmt"

	minion "github.com/femto/minion-novel"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of minion",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("minion version %s\n", minion.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
