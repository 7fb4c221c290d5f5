package main

import (
	"context"
	"fmt"
	"os"

	"github.com/femto/minion-novel/internal/cli"
	"github.com/femto/minion-novel/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minion",
	Short: "minion runs multi-agent conversations over persistent sessions",
	Long: `minion hosts applications made of routing agents, tools and pipelines.
Turns run against sessions identified by app, user and session id, and can be
driven from the terminal, over HTTP or through MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default: minion.yaml in . or ~/.minion)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("store", "", "Session store: memory, file or redis")
}

// loadConfig reads the config file and env, then applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Store.Driver = store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup builds the runtime of a command. The caller closes it.
func setup(cmd *cobra.Command) (*cli.Runtime, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	rt, err := cli.NewRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

func closeRuntime(rt *cli.Runtime) {
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Warn("Shutdown incomplete", "err", err)
	}
}
