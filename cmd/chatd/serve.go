// File: cmd/chatd/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-chat/config"
	"github.com/momentics/hioload-chat/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath  string
		listenAddr  string
		metricsAddr string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long: `Run the chat server until SIGINT or SIGTERM.

Configuration merges defaults, the optional config file and CHATD_*
environment variables; flags override all three. The first signal
drains gracefully, a second one forces an immediate stop.

Examples:
  chatd serve
  chatd serve --config /etc/chatd/chatd.yaml
  chatd serve --listen :9000 --metrics :9101`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, listenAddr, metricsAddr, workers)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "TCP listen address (overrides config)")
	cmd.Flags().StringVarP(&metricsAddr, "metrics", "m", "", "Prometheus listen address (overrides config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker pool size (overrides config)")

	return cmd
}

func runServe(configPath, listenAddr, metricsAddr string, workers int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	srv, err := server.New(cfg, server.WithBuildInfo("chatd", version))
	if err != nil {
		return err
	}
	return srv.Run(context.Background())
}
