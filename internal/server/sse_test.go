package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pbxbridge/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entity(key, name string, value any) store.EntityState {
	return store.EntityState{
		Key:          key,
		Name:         name,
		Platform:     "sensor",
		ConnectionID: "pbx.local:8000",
		Value:        value,
		Available:    true,
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// parseSSEEvents decodes every "data:" line of an SSE body.
func parseSSEEvents(body string) []store.EntityState {
	var states []store.EntityState
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var s store.EntityState
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s); err == nil {
			states = append(states, s)
		}
	}
	return states
}

func TestHandleSSE_InitialStates(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(entity("c_active_calls", "GonoPBX Active Calls", 2))
	st.Update(entity("c_calls_today", "GonoPBX Calls Today", 12))

	srv := NewServer(st, 0, nil, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("got %d initial events, want 2: %s", len(events), rec.Body.String())
	}
	if events[0].Key != "c_active_calls" || events[1].Key != "c_calls_today" {
		t.Errorf("initial events = %q, %q", events[0].Key, events[1].Key)
	}
	if events[0].Name != "GonoPBX Active Calls" {
		t.Errorf("Name = %q", events[0].Name)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	st := store.NewMemoryStore()
	srv := NewServer(st, 0, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	st.Update(entity("c_voicemail_unread", "GonoPBX Voicemail Unread", 3))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if !strings.Contains(rec.Body.String(), "c_voicemail_unread") {
		t.Errorf("response should contain streamed update, got: %s", rec.Body.String())
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(entity("c_system", "GonoPBX System", true))
	srv := NewServer(st, 0, nil, nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	const numClients = 10
	var wg sync.WaitGroup
	started := make(chan struct{})
	var startedCount atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			rec := httptest.NewRecorder()
			if startedCount.Add(1) == numClients {
				close(started)
			}
			srv.handleSSE(rec, req)
		}()
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("clients did not start in time")
	}
	time.Sleep(100 * time.Millisecond)

	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
}

func (n *nonFlushWriter) Header() http.Header         { return n.header }
func (n *nonFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlushWriter) WriteHeader(statusCode int)  { n.statusCode = statusCode }

func TestHandleSSE_NotSupported(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, nil, testLogger())
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.statusCode, http.StatusInternalServerError)
	}
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, nil, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expected := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}
	for key, want := range expected {
		if got := rec.Header().Get(key); got != want {
			t.Errorf("header %s = %q, want %q", key, got, want)
		}
	}
}

// TestHandleSSE_ServerShutdownIntegration uses a real connection so write
// deadlines are supported.
func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	st := store.NewMemoryStore()
	st.Update(entity("c_system", "GonoPBX System", true))
	srv := NewServer(st, 0, nil, nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.handleSSE(w, r.WithContext(serverCtx))
	}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	connDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		close(connDone)
	}()

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}
