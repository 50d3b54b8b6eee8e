package pbxbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pbxbridge/internal/actions"
	"github.com/jpalmerr/pbxbridge/internal/events"
	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
	"github.com/jpalmerr/pbxbridge/internal/poller"
	"github.com/jpalmerr/pbxbridge/internal/server"
	"github.com/jpalmerr/pbxbridge/internal/store"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

const (
	defaultPollingInterval = poller.DefaultInterval
	defaultPort            = 8080
	defaultMaxConcurrency  = 4

	brokerConnectTimeout = 10 * time.Second
)

// ErrCannotConnect is returned by [CheckConnection] when the backend health
// check does not report a healthy backend.
var ErrCannotConnect = errors.New("cannot connect")

// Bridge polls GonoPBX backends and exposes their state as entities.
//
// Bridge is created using [New] with functional options and started with
// [Bridge.Start]. The typical lifecycle is:
//
//	conn, _ := pbxbridge.NewConnection("pbx.local", 8000, apiKey)
//	b, err := pbxbridge.New(pbxbridge.WithConnection(conn))
//	if err != nil {
//	    slog.Error("failed to create bridge", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Bridge struct {
	connections      []Connection
	pollingInterval  time.Duration
	port             int
	maxConcurrency   int
	logger           *slog.Logger
	broker           string
	mqttClientID     string
	refreshCallbacks []func(RefreshResult)
	eventCallbacks   []func(Event)

	mu      sync.Mutex
	running []*connectionRuntime
}

// connectionRuntime is the live state of one connection while running.
type connectionRuntime struct {
	conn     Connection
	client   *pbxapi.Client
	coord    *poller.Coordinator
	entities *entitySet
}

// New creates a new [Bridge] instance with the given options.
//
// At least one connection must be configured via [WithConnection] or
// [WithConnections]. Other options have defaults:
//   - Polling interval: 30 seconds
//   - Port: 8080
//   - Max concurrency: 4
//
// Returns an error if no connections are configured, if two connections
// share an id, if a connection uses MQTT without a broker, or if any option
// is invalid.
func New(opts ...Option) (*Bridge, error) {
	cfg := &bridgeConfig{
		pollingInterval: defaultPollingInterval,
		port:            defaultPort,
		maxConcurrency:  defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.connections) == 0 {
		return nil, errors.New("at least one connection is required")
	}

	seen := make(map[string]bool, len(cfg.connections))
	for _, c := range cfg.connections {
		if c.id == "" {
			return nil, errors.New("connection must be created with NewConnection")
		}
		if seen[c.id] {
			return nil, fmt.Errorf("duplicate connection id: %q", c.id)
		}
		seen[c.id] = true

		if c.useMQTT && cfg.broker == "" {
			return nil, fmt.Errorf("connection %q uses MQTT but no broker is configured", c.id)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		connections:      cfg.connections,
		pollingInterval:  cfg.pollingInterval,
		port:             cfg.port,
		maxConcurrency:   cfg.maxConcurrency,
		logger:           logger,
		broker:           cfg.broker,
		mqttClientID:     cfg.mqttClientID,
		refreshCallbacks: cfg.refreshCallbacks,
		eventCallbacks:   cfg.eventCallbacks,
	}, nil
}

// Start refreshes every connection and serves the HTTP API.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Every connection is refreshed immediately, then at the polling interval
//   - Entity states are rendered into the store after every cycle
//   - The HTTP API starts on the configured port
//   - Call events are consumed over MQTT if any connection enables it
//
// On cancellation in-flight cycles are cancelled and discarded, the MQTT
// subscription is removed and every client is released.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails to start.
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("pbxbridge starting", "connection_count", len(b.connections))
	b.logger.Info("polling configured", "interval", b.pollingInterval.String())
	b.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d/api/entities", b.port))

	if ctx.Err() != nil {
		return nil
	}

	entityStore := store.NewMemoryStore()
	registry := actions.NewRegistry()
	runs := b.setup(entityStore, registry)

	coords := make([]*poller.Coordinator, len(runs))
	for i, rc := range runs {
		coords[i] = rc.coord
	}
	scheduler := poller.NewScheduler(coords, b.pollingInterval, b.maxConcurrency, b.logger)

	var (
		broker *events.PahoBroker
		sub    *events.Subscription
	)

	cleanup := func() {
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Warn("mqtt unsubscribe failed", "error", err.Error())
			}
		}
		if broker != nil {
			broker.Disconnect()
		}
		scheduler.Stop()
		for _, rc := range runs {
			registry.Remove(rc.conn.id)
			rc.coord.Close()
			rc.client.Close()
		}
		b.setRunning(nil)
	}

	dispatcher := actions.NewDispatcher(registry, b.logger)
	httpServer := server.NewServer(entityStore, b.port, dispatcher, b.serverStatus, b.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if b.wantsEvents() {
		broker, sub = b.startEvents(ctx)
	}

	scheduler.Start(ctx)

	<-ctx.Done()
	cleanup()
	httpServer.Wait()
	b.logger.Info("pbxbridge stopped")
	return nil
}

// setup builds one client, coordinator and entity set per connection and
// registers the clients for actions.
func (b *Bridge) setup(st store.Store, registry *actions.Registry) []*connectionRuntime {
	runs := make([]*connectionRuntime, len(b.connections))
	for i, conn := range b.connections {
		client := newClient(conn)

		rc := &connectionRuntime{
			conn:     conn,
			client:   client,
			coord:    poller.NewCoordinator(conn.id, client, b.logger),
			entities: newEntitySet(conn.id, st),
		}
		rc.coord.AddListener(b.entityListener(rc))
		if len(b.refreshCallbacks) > 0 {
			rc.coord.AddListener(b.callbackListener(conn.id))
		}
		registry.Register(conn.id, client)
		runs[i] = rc
	}
	b.setRunning(runs)
	return runs
}

// entityListener keeps the connection's entities in sync with its snapshot.
func (b *Bridge) entityListener(rc *connectionRuntime) poller.Listener {
	return func(o poller.RefreshOutcome) {
		if o.Success() {
			if n := rc.entities.discover(o.Snapshot); n > 0 {
				b.logger.Debug("entities discovered", "connection", rc.conn.id, "count", n)
			}
		}
		rc.entities.render(o.Snapshot, o.Err)
	}
}

// callbackListener forwards refresh outcomes to the registered callbacks.
func (b *Bridge) callbackListener(connectionID string) poller.Listener {
	return func(o poller.RefreshOutcome) {
		result := RefreshResult{
			ConnectionID: connectionID,
			Snapshot:     o.Snapshot,
			Err:          o.Err,
			CompletedAt:  time.Now(),
		}
		for _, cb := range b.refreshCallbacks {
			invokeCallbackSafe(b.logger, "refresh callback", connectionID, func() { cb(result) })
		}
	}
}

func (b *Bridge) wantsEvents() bool {
	for _, c := range b.connections {
		if c.useMQTT {
			return true
		}
	}
	return false
}

// startEvents connects to the broker and subscribes to call events. A
// broker that cannot be reached disables the event stream; polling is
// unaffected.
func (b *Bridge) startEvents(ctx context.Context) (*events.PahoBroker, *events.Subscription) {
	broker := events.NewPahoBroker(b.broker, b.mqttClientID, b.logger)

	connectCtx, cancel := context.WithTimeout(ctx, brokerConnectTimeout)
	defer cancel()
	if err := broker.Connect(connectCtx); err != nil {
		b.logger.Warn("MQTT not available, skipping event subscription", "error", err.Error())
		broker.Disconnect()
		return nil, nil
	}

	sub, err := events.NewSubscriber(broker, b.dispatchEvent, b.logger).Subscribe()
	if err != nil {
		b.logger.Warn("MQTT subscription failed", "error", err.Error())
		return broker, nil
	}
	return broker, sub
}

// dispatchEvent delivers an event to the registered callbacks.
func (b *Bridge) dispatchEvent(ev events.Event) {
	public := Event{
		Type:       ev.Type,
		Topic:      ev.Topic,
		Data:       ev.Data,
		ReceivedAt: ev.ReceivedAt,
	}
	b.logger.Info("call event", "type", ev.Type, "topic", ev.Topic)
	for _, cb := range b.eventCallbacks {
		invokeCallbackSafe(b.logger, "event callback", ev.Type, func() { cb(public) })
	}
}

func (b *Bridge) setRunning(runs []*connectionRuntime) {
	b.mu.Lock()
	b.running = runs
	b.mu.Unlock()
}

// Status returns the refresh status of every connection. Before [Bridge.Start]
// and after it returns every connection reports "idle".
func (b *Bridge) Status() []ConnectionStatus {
	b.mu.Lock()
	runs := b.running
	b.mu.Unlock()

	out := make([]ConnectionStatus, len(b.connections))
	for i, c := range b.connections {
		out[i] = ConnectionStatus{
			ID:      c.id,
			Title:   c.Title(),
			State:   poller.StateIdle.String(),
			UseMQTT: c.useMQTT,
		}
	}
	for i, rc := range runs {
		out[i].State = rc.coord.State().String()
		out[i].LastUpdateSuccess = rc.coord.LastUpdateSuccess()
		out[i].LastError = rc.coord.LastError()
		out[i].LastSuccessAt = rc.coord.LastSuccessAt()
	}
	return out
}

// serverStatus adapts [Bridge.Status] to the API's JSON shape.
func (b *Bridge) serverStatus() []server.ConnectionStatus {
	statuses := b.Status()
	out := make([]server.ConnectionStatus, len(statuses))
	for i, s := range statuses {
		out[i] = server.ConnectionStatus{
			ID:                s.ID,
			Title:             s.Title,
			State:             s.State,
			LastUpdateSuccess: s.LastUpdateSuccess,
			MQTT:              s.UseMQTT,
		}
		if s.LastError != nil {
			msg := s.LastError.Error()
			out[i].LastError = &msg
		}
		if !s.LastSuccessAt.IsZero() {
			at := s.LastSuccessAt
			out[i].LastSuccessAt = &at
		}
	}
	return out
}

// Connections returns a copy of the configured connections.
func (b *Bridge) Connections() []Connection {
	cp := make([]Connection, len(b.connections))
	copy(cp, b.connections)
	return cp
}

// Port returns the configured HTTP port for the API server.
func (b *Bridge) Port() int {
	return b.port
}

// PollingInterval returns the configured interval between refresh cycles.
func (b *Bridge) PollingInterval() time.Duration {
	return b.pollingInterval
}

// Broker returns the configured MQTT broker URL, or "" if none.
func (b *Bridge) Broker() string {
	return b.broker
}

// CheckConnection verifies that the backend behind conn is reachable and
// healthy. It returns nil on success and an error wrapping [ErrCannotConnect]
// otherwise. It has no side effects on any running bridge.
func CheckConnection(ctx context.Context, conn Connection) error {
	client := newClient(conn)
	defer client.Close()

	if !client.CheckConnection(ctx) {
		return fmt.Errorf("%s: %w", conn.id, ErrCannotConnect)
	}
	return nil
}

// FetchSnapshot runs a single refresh cycle against conn and returns the
// assembled snapshot.
func FetchSnapshot(ctx context.Context, conn Connection) (*snapshot.Snapshot, error) {
	client := newClient(conn)
	defer client.Close()

	coord := poller.NewCoordinator(conn.id, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer coord.Close()

	if err := coord.Refresh(ctx); err != nil {
		return nil, err
	}
	return coord.Snapshot(), nil
}

func newClient(conn Connection) *pbxapi.Client {
	httpClient := pbxapi.NewHTTPClient()
	httpClient.Timeout = conn.timeout
	return pbxapi.NewClient(conn.host, conn.port, conn.apiKey, httpClient)
}

// invokeCallbackSafe runs fn with panic recovery.
// Panics are logged with a correlation id and do not propagate.
func invokeCallbackSafe(logger *slog.Logger, what, subject string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(what+" panicked",
				"correlation_id", uuid.NewString(),
				"subject", subject,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
