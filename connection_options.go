package pbxbridge

import (
	"errors"
	"strings"
	"time"
)

// connectionConfig holds mutable state during connection construction.
type connectionConfig struct {
	id      string
	useMQTT bool
	timeout time.Duration
}

// ConnectionOption is a function that configures a [Connection] during construction.
//
// Built-in options: [WithMQTT], [WithConnectionID], [WithRequestTimeout].
type ConnectionOption func(*connectionConfig) error

// WithMQTT enables the MQTT call event stream for the connection.
// The bridge must also be given a broker via [WithBroker].
func WithMQTT(enabled bool) ConnectionOption {
	return func(cfg *connectionConfig) error {
		cfg.useMQTT = enabled
		return nil
	}
}

// WithConnectionID overrides the default "host:port" connection id.
//
// Returns an error if the id is empty or contains whitespace.
func WithConnectionID(id string) ConnectionOption {
	return func(cfg *connectionConfig) error {
		if id == "" {
			return errors.New("connection id cannot be empty")
		}
		if strings.ContainsAny(id, " \t\n") {
			return errors.New("connection id cannot contain whitespace")
		}
		cfg.id = id
		return nil
	}
}

// WithRequestTimeout sets the timeout for each backend request.
//
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) ConnectionOption {
	return func(cfg *connectionConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}
