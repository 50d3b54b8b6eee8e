package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pbxbridge"
)

func main() {
	// start mock backend (see mock_server.go)
	go StartMockPBX(":9999", "demo-key")
	time.Sleep(100 * time.Millisecond)

	conn, err := pbxbridge.NewConnection("localhost", 9999, "demo-key",
		pbxbridge.WithConnectionID("demo"),
	)
	if err != nil {
		slog.Error("failed to create connection", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pbxbridge.CheckConnection(ctx, conn); err != nil {
		slog.Error("backend check failed", "error", err)
		os.Exit(1)
	}

	b, err := pbxbridge.New(
		pbxbridge.WithConnection(conn),
		pbxbridge.WithPollingInterval(5*time.Second),
		pbxbridge.WithPort(8080),
		pbxbridge.WithSnapshotCallback(func(r pbxbridge.RefreshResult) {
			if !r.Success() {
				slog.Warn("refresh failed", "connection", r.ConnectionID, "error", r.Err)
				return
			}
			slog.Info("refreshed",
				"connection", r.ConnectionID,
				"active_calls", r.Snapshot.ActiveCalls(),
				"endpoints", len(r.Snapshot.Endpoints()),
			)
		}),
	)
	if err != nil {
		slog.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pbxbridge demo")
	fmt.Println()
	fmt.Println("  Entities:    http://localhost:8080/api/entities")
	fmt.Println("  Live stream: http://localhost:8080/api/sse")
	fmt.Println("  Status:      http://localhost:8080/api/connections")
	fmt.Println()
	fmt.Println("  Mock backend on :9999 changes state every 10-30s")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := b.Start(ctx); err != nil {
		slog.Error("pbxbridge error", "error", err)
		os.Exit(1)
	}
}
