package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/jpalmerr/pbxbridge/internal/pbxtest"
)

// StartMockPBX serves an in-memory GonoPBX backend on addr whose state
// changes every 10-30 seconds. Call this in a goroutine before starting
// the bridge.
func StartMockPBX(addr, apiKey string) {
	backend := pbxtest.NewBackend(apiKey)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	go func() {
		for {
			time.Sleep(time.Duration(10+rng.Intn(21)) * time.Second)
			slog.Info("mock pbx change", "change", backend.Churn(rng))
		}
	}()

	if err := http.ListenAndServe(addr, backend); err != nil {
		slog.Error("mock pbx error", "error", err)
	}
}
