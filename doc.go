// Package pbxbridge bridges GonoPBX telephony backends into a set of
// read-only entities and a small action surface.
//
// A [Bridge] periodically polls each configured backend over its REST API,
// merges the responses into an immutable [snapshot.Snapshot], and renders
// per-connection entities from it: a system connectivity sensor, one
// connectivity sensor per extension and trunk, and counters for active
// calls, calls today, missed calls and unread voicemail. A failed refresh
// keeps the last known good values and marks the entities unavailable.
//
// # Quick Start
//
//	conn, _ := pbxbridge.NewConnection("pbx.local", 8000, os.Getenv("GONOPBX_API_KEY"))
//	b, _ := pbxbridge.New(pbxbridge.WithConnection(conn))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Bridge uses the functional options pattern:
//
//	b, err := pbxbridge.New(
//	    pbxbridge.WithConnections(office, branch),
//	    pbxbridge.WithPollingInterval(30 * time.Second),
//	    pbxbridge.WithPort(9090),
//	    pbxbridge.WithBroker("tcp://localhost:1883", "pbxbridge"),
//	)
//
// Connections created with [WithMQTT] additionally consume call lifecycle
// events from the broker and deliver them to [WithEventCallback] callbacks.
//
// # Actions
//
// The HTTP API and the [MakeCall] and [ToggleForwarding] helpers send writes
// to the first configured connection unless a connection id is given.
// Actions never trigger a refresh; their effect shows up in the next cycle.
//
// # Architecture
//
//   - snapshot: Immutable merged view of one backend
//   - internal/pbxapi: REST client for the GonoPBX backend
//   - internal/poller: Per-connection refresh coordinator and scheduler
//   - internal/store: In-memory entity states with pub/sub
//   - internal/actions: Action registry and validating dispatcher
//   - internal/events: MQTT call event stream
//   - internal/server: REST API and Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package pbxbridge
