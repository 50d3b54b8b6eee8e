package pbxbridge

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustConnection(t *testing.T, host string, opts ...ConnectionOption) Connection {
	t.Helper()
	c, err := NewConnection(host, 8000, "secret", opts...)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	return c
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(WithConnection(mustConnection(t, "pbx")))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if b.PollingInterval() != 30*time.Second {
		t.Errorf("PollingInterval() = %v, want 30s", b.PollingInterval())
	}
	if b.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", b.Port())
	}
	if b.maxConcurrency != defaultMaxConcurrency {
		t.Errorf("maxConcurrency = %d, want %d", b.maxConcurrency, defaultMaxConcurrency)
	}
	if b.Broker() != "" {
		t.Errorf("Broker() = %q, want empty", b.Broker())
	}
	if b.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
}

func TestNew_NoConnections(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("New() without connections should fail")
	}
}

func TestNew_ZeroConnection(t *testing.T) {
	if _, err := New(WithConnection(Connection{})); err == nil {
		t.Error("New() with zero Connection should fail")
	}
}

func TestNew_DuplicateConnectionIDs(t *testing.T) {
	a := mustConnection(t, "pbx")
	b := mustConnection(t, "other", WithConnectionID("pbx:8000"))

	_, err := New(WithConnections(a, b))
	if err == nil {
		t.Fatal("New() with duplicate ids should fail")
	}
	if !strings.Contains(err.Error(), "duplicate connection id") {
		t.Errorf("error = %v", err)
	}
}

func TestNew_MQTTRequiresBroker(t *testing.T) {
	conn := mustConnection(t, "pbx", WithMQTT(true))

	if _, err := New(WithConnection(conn)); err == nil {
		t.Error("New() with MQTT connection and no broker should fail")
	}

	b, err := New(WithConnection(conn), WithBroker("tcp://localhost:1883", ""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.Broker() != "tcp://localhost:1883" {
		t.Errorf("Broker() = %q", b.Broker())
	}
}

func TestWithConnections_Order(t *testing.T) {
	a, c := mustConnection(t, "a"), mustConnection(t, "c")
	bb := mustConnection(t, "b")

	b, err := New(WithConnections(a, bb), WithConnection(c))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	conns := b.Connections()
	if len(conns) != 3 || conns[0].ID() != "a:8000" || conns[1].ID() != "b:8000" || conns[2].ID() != "c:8000" {
		t.Errorf("Connections() order = %v", conns)
	}

	// returned slice is a copy
	conns[0] = c
	if b.Connections()[0].ID() != "a:8000" {
		t.Error("Connections() exposed internal slice")
	}
}

func TestOptions_Valid(t *testing.T) {
	logger := testLogger()
	b, err := New(
		WithConnection(mustConnection(t, "pbx")),
		WithPollingInterval(time.Minute),
		WithPort(9090),
		WithMaxConcurrency(2),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.PollingInterval() != time.Minute || b.Port() != 9090 || b.maxConcurrency != 2 || b.logger != logger {
		t.Errorf("bridge = %+v", b)
	}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero interval", WithPollingInterval(0)},
		{"sub-second interval", WithPollingInterval(500 * time.Millisecond)},
		{"port zero", WithPort(0)},
		{"port too high", WithPort(70000)},
		{"zero concurrency", WithMaxConcurrency(0)},
		{"nil logger", WithLogger(nil)},
		{"broker without scheme", WithBroker("localhost:1883", "")},
		{"broker empty", WithBroker("", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(WithConnection(mustConnection(t, "pbx")), tt.opt); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestOptions_NilCallbacksIgnored(t *testing.T) {
	b, err := New(
		WithConnection(mustConnection(t, "pbx")),
		WithSnapshotCallback(nil),
		WithEventCallback(nil),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(b.refreshCallbacks) != 0 || len(b.eventCallbacks) != 0 {
		t.Error("nil callbacks should not be registered")
	}
}

func TestStatus_BeforeStart(t *testing.T) {
	b, err := New(WithConnection(mustConnection(t, "pbx", WithMQTT(true))), WithBroker("tcp://broker:1883", ""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	st := b.Status()
	if len(st) != 1 {
		t.Fatalf("Status() = %d entries", len(st))
	}
	if st[0].State != "idle" || st[0].Title != "GonoPBX (pbx)" || !st[0].UseMQTT {
		t.Errorf("Status()[0] = %+v", st[0])
	}
}
