// Standalone mock GonoPBX backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockpbx
//
// Then in another terminal:
//
//	go run ./cmd/pbxbridge serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/pbxbridge/internal/pbxtest"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	apiKey := flag.String("api-key", "demo-key", "expected X-API-Key value")
	flag.Parse()

	fmt.Printf("Mock GonoPBX backend starting on %s (api key %q)\n", *addr, *apiKey)
	fmt.Println("Endpoints and call counters change every 10-30 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	backend := pbxtest.NewBackend(*apiKey)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	go func() {
		for {
			time.Sleep(time.Duration(10+rng.Intn(21)) * time.Second)
			slog.Info("state change", "change", backend.Churn(rng))
		}
	}()

	if err := http.ListenAndServe(*addr, backend); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
