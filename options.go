package pbxbridge

import (
	"errors"
	"log/slog"
	"net/url"
	"time"
)

// bridgeConfig holds mutable state during Bridge construction.
type bridgeConfig struct {
	connections      []Connection
	pollingInterval  time.Duration
	port             int
	maxConcurrency   int
	logger           *slog.Logger
	broker           string
	mqttClientID     string
	refreshCallbacks []func(RefreshResult)
	eventCallbacks   []func(Event)
}

// Option is a function that configures a [Bridge] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*bridgeConfig) error

// WithConnection adds a single [Connection].
//
// Can be called multiple times. At least one connection must be configured
// for [New] to succeed.
func WithConnection(c Connection) Option {
	return func(cfg *bridgeConfig) error {
		cfg.connections = append(cfg.connections, c)
		return nil
	}
}

// WithConnections adds multiple [Connection] values.
// Equivalent to calling [WithConnection] for each.
func WithConnections(connections ...Connection) Option {
	return func(cfg *bridgeConfig) error {
		cfg.connections = append(cfg.connections, connections...)
		return nil
	}
}

// WithPollingInterval sets how often every connection is refreshed.
//
// Defaults to 30 seconds if not specified.
//
// Returns an error if the duration is shorter than one second.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *bridgeConfig) error {
		if d < time.Second {
			return errors.New("polling interval must be at least 1s")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the API server.
//
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *bridgeConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets how many connections refresh at the same time.
//
// Defaults to 4 if not specified.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *bridgeConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Bridge instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *bridgeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithBroker sets the MQTT broker URL, e.g. "tcp://localhost:1883", used by
// connections created with [WithMQTT]. clientID prefixes the MQTT client id;
// empty means "pbxbridge".
//
// Returns an error if the URL has no scheme or host.
func WithBroker(brokerURL, clientID string) Option {
	return func(cfg *bridgeConfig) error {
		u, err := url.Parse(brokerURL)
		if err != nil {
			return errors.New("invalid broker URL: " + err.Error())
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.New("broker URL must have a scheme and host, e.g. tcp://localhost:1883")
		}
		cfg.broker = brokerURL
		cfg.mqttClientID = clientID
		return nil
	}
}

// WithSnapshotCallback registers a function called after every refresh cycle
// of every connection.
//
// Callbacks run in registration order on the refreshing goroutine and must
// not block. Panics within callbacks are recovered and logged.
//
// Example:
//
//	b, err := pbxbridge.New(
//	    pbxbridge.WithConnection(conn),
//	    pbxbridge.WithSnapshotCallback(func(r pbxbridge.RefreshResult) {
//	        if !r.Success() {
//	            log.Printf("%s: %v", r.ConnectionID, r.Err)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithSnapshotCallback(cb func(RefreshResult)) Option {
	return func(cfg *bridgeConfig) error {
		if cb == nil {
			return nil
		}
		cfg.refreshCallbacks = append(cfg.refreshCallbacks, cb)
		return nil
	}
}

// WithEventCallback registers a function called for every call event
// received over MQTT.
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(Event)) Option {
	return func(cfg *bridgeConfig) error {
		if cb == nil {
			return nil
		}
		cfg.eventCallbacks = append(cfg.eventCallbacks, cb)
		return nil
	}
}
