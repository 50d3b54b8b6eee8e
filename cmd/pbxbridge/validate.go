package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pbxbridge"
	"github.com/jpalmerr/pbxbridge/config"
)

const checkTimeout = 10 * time.Second

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a pbxbridge configuration file without starting the bridge.

This command parses the YAML, expands environment variables, and validates
all fields. With --check it also calls the health resource of every
connection and reports "cannot connect" for backends that are unreachable,
reject the API key or are not healthy.

Exit codes:
  0 - Config is valid (and every backend reachable with --check)
  1 - Config is invalid or a backend check failed

Example:
  pbxbridge validate -c config.yaml
  pbxbridge validate -c config.yaml --check`,
		RunE: runValidate,
	}
	addConfigFlag(cmd)
	cmd.Flags().Bool("check", false, "also verify every backend is reachable")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	conns, err := config.BuildConnections(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mqttCount := 0
	for _, c := range conns {
		if c.UseMQTT() {
			mqttCount++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Connections:   %d (%d with MQTT)\n", len(conns), mqttCount)

	check, _ := cmd.Flags().GetBool("check")
	if !check {
		return nil
	}

	failed := 0
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
		err := pbxbridge.CheckConnection(ctx, c)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(out, "  %s: ok\n", c.ID())
		case errors.Is(err, pbxbridge.ErrCannotConnect):
			failed++
			fmt.Fprintf(out, "  %s: cannot connect\n", c.ID())
		default:
			failed++
			fmt.Fprintf(out, "  %s: %v\n", c.ID(), err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d connections failed the check", failed, len(conns))
	}
	return nil
}
