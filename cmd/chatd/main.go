// File: cmd/chatd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatd",
		Short: "High-throughput TCP chat daemon",
		Long: `chatd is a single-host chat server for many concurrent TCP clients.

Clients speak a compact length-prefixed frame protocol: bind an
identity with LOGIN, send direct messages, broadcast to every
logged-in identity, and keep the session alive with PING. One
event loop owns all sockets; a worker pool runs the chat logic.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
