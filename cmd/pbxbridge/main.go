// Package main is the entry point for the pbxbridge CLI.
//
// pbxbridge can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pbxbridge serve -c config.yaml                  # Poll and serve the entity API
//	pbxbridge validate -c config.yaml --check       # Validate config and reach every backend
//	pbxbridge status -c config.yaml                 # One refresh cycle per connection
//	pbxbridge call -c config.yaml --extension 101 --number 0301234
//	pbxbridge forward -c config.yaml --id 3 --enabled
//	pbxbridge version                               # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. A fresh tree per invocation keeps
// flag values from leaking between runs.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pbxbridge",
		Short: "Bridge GonoPBX telephony state into a home automation API",
		Long: `pbxbridge polls one or more GonoPBX backends and exposes their state
(system connectivity, extensions, trunks and call counters) as entities
over a JSON and Server-Sent Events API.

Quick start:
  1. Create a config file (pbxbridge.yaml)
  2. Run: pbxbridge validate -c pbxbridge.yaml --check
  3. Run: pbxbridge serve -c pbxbridge.yaml
  4. Open http://localhost:8080/api/entities

Example config:
  port: 8080
  poll_interval: 30s
  connections:
    - host: pbx.local
      api_key: ${GONOPBX_API_KEY}`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newStatusCmd(),
		newCallCmd(),
		newForwardCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this pbxbridge binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pbxbridge %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// addConfigFlag registers the required -c/--config flag.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
}
