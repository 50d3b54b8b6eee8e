package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pbxbridge"
	"github.com/jpalmerr/pbxbridge/config"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Run one refresh cycle and print the result",
		Long: `Run a single refresh cycle against every configured connection and print
the assembled snapshot. Nothing is served and no state is kept.

Example:
  pbxbridge status -c config.yaml
  pbxbridge status -c config.yaml --connection office`,
		RunE: runStatus,
	}
	addConfigFlag(cmd)
	cmd.Flags().String("connection", "", "only query the connection with this id")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	conns, err := loadConnections(cmd)
	if err != nil {
		return err
	}

	only, _ := cmd.Flags().GetString("connection")
	out := cmd.OutOrStdout()
	failed, matched := 0, 0
	for _, c := range conns {
		if only != "" && c.ID() != only {
			continue
		}
		matched++

		ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
		snap, err := pbxbridge.FetchSnapshot(ctx, c)
		cancel()

		fmt.Fprintf(out, "%s  %s\n", c.ID(), c.Title())
		if err != nil {
			failed++
			fmt.Fprintf(out, "  error: %v\n", err)
			continue
		}
		printSnapshot(out, snap)
	}

	if matched == 0 {
		return fmt.Errorf("no connection with id %q", only)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d connections failed to refresh", failed, matched)
	}
	return nil
}

// printSnapshot writes a human-readable summary of s.
func printSnapshot(w io.Writer, s *snapshot.Snapshot) {
	asterisk := "disconnected"
	if s.AsteriskConnected() {
		asterisk = "connected"
	}

	eps := s.Endpoints()
	online := 0
	for _, ep := range eps {
		if ep.Online() {
			online++
		}
	}

	fmt.Fprintf(w, "  Fetched:       %s\n", humanize.Time(s.FetchedAt))
	fmt.Fprintf(w, "  Asterisk:      %s\n", asterisk)
	fmt.Fprintf(w, "  Active calls:  %s\n", humanize.Comma(int64(s.ActiveCalls())))
	fmt.Fprintf(w, "  Calls today:   %s\n", optional(s.CdrStats != nil, s.CallsToday()))
	fmt.Fprintf(w, "  Missed calls:  %s\n", optional(s.CdrStats != nil, s.MissedCalls()))
	fmt.Fprintf(w, "  Voicemail:     %s\n", optional(s.Voicemail != nil, s.VoicemailUnread()))
	fmt.Fprintf(w, "  Endpoints:     %d/%d online\n", online, len(eps))
	for _, ep := range eps {
		fmt.Fprintf(w, "    %-5s %-12s %-20s %s\n", ep.Kind, ep.ID, ep.DisplayName, ep.Status)
	}
}

// optional formats n, or "n/a" when its section is missing.
func optional(present bool, n int) string {
	if !present {
		return "n/a"
	}
	return humanize.Comma(int64(n))
}

// loadConnections loads the config named by --config and builds its
// connections.
func loadConnections(cmd *cobra.Command) ([]pbxbridge.Connection, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	conns, err := config.BuildConnections(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build connections: %w", err)
	}
	return conns, nil
}
