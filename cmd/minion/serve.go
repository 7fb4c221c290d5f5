package main

import (
	"net/http"
	"time"

	"github.com/femto/minion-novel/internal/cli"
	httpAdapter "github.com/femto/minion-novel/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes the registered apps over HTTP: JSON or SSE turns, session
management, the OpenAPI document and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		defer closeRuntime(rt)

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		opts := []httpAdapter.Option{httpAdapter.WithLogger(rt.Logger)}
		if rt.Registry != nil {
			opts = append(opts, httpAdapter.WithMetrics(rt.Registry))
		}
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpAdapter.NewHandler(rt.Engine.Runner(), opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return httpAdapter.ListenAndServe(sigCtx, srv, cfg.HTTP.ShutdownTimeout, rt.Logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8080)")
}
