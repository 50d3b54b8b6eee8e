package main

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pbxbridge"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Originate a call",
		Long: `Ask a backend to ring an extension and connect it to a number.

The call is sent to the first configured connection unless --connection
names another one.

Example:
  pbxbridge call -c config.yaml --extension 101 --number 0301234567`,
		RunE: runCall,
	}
	addConfigFlag(cmd)
	cmd.Flags().String("extension", "", "extension to ring (required)")
	cmd.Flags().String("number", "", "number to dial (required)")
	cmd.Flags().String("connection", "", "connection id; defaults to the first connection")
	_ = cmd.MarkFlagRequired("extension")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	conns, err := loadConnections(cmd)
	if err != nil {
		return err
	}

	extension, _ := cmd.Flags().GetString("extension")
	number, _ := cmd.Flags().GetString("number")
	connectionID, _ := cmd.Flags().GetString("connection")

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	result, err := pbxbridge.MakeCall(ctx, conns, connectionID, extension, number)
	if err != nil {
		return fmt.Errorf("make_call failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), result)
}

func newForwardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Enable or disable a call forwarding rule",
		Long: `Enable or disable a call forwarding rule by id.

Use --enabled to switch the rule on and --enabled=false to switch it off.
--type is only sent when given.

Example:
  pbxbridge forward -c config.yaml --id 3 --enabled
  pbxbridge forward -c config.yaml --id 3 --enabled=false --type busy`,
		RunE: runForward,
	}
	addConfigFlag(cmd)
	cmd.Flags().Int("id", 0, "forwarding rule id (required)")
	cmd.Flags().Bool("enabled", false, "target state of the rule (required)")
	cmd.Flags().String("type", "", "forwarding type, e.g. unconditional or busy")
	cmd.Flags().String("connection", "", "connection id; defaults to the first connection")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("enabled")
	return cmd
}

func runForward(cmd *cobra.Command, args []string) error {
	conns, err := loadConnections(cmd)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetInt("id")
	enabled, _ := cmd.Flags().GetBool("enabled")
	connectionID, _ := cmd.Flags().GetString("connection")

	var forwardType *string
	if cmd.Flags().Changed("type") {
		t, _ := cmd.Flags().GetString("type")
		forwardType = &t
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	result, err := pbxbridge.ToggleForwarding(ctx, conns, connectionID, id, enabled, forwardType)
	if err != nil {
		return fmt.Errorf("toggle_forwarding failed: %w", err)
	}
	return printResult(cmd.OutOrStdout(), result)
}

// printResult writes the backend's response as indented JSON.
func printResult(w io.Writer, result map[string]any) error {
	if result == nil {
		result = map[string]any{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
