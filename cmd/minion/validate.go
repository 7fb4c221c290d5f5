package main

import (
	"fmt"
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <apps.yaml>...",
	Short: "Check app definition files",
	Long: `Loads each definition file, validates it and compiles its agent trees
against the built-in tools and the commands of --tools.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolsPath, _ := cmd.Flags().GetString("tools")
		if err := cli.ValidateDefinitions(args, toolsPath, os.Stdout); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("Definitions are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("tools", "", "tools.yaml declaring external commands")
}
