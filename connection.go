package pbxbridge

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBackendPort is the GonoPBX REST port used when none is given.
	DefaultBackendPort = 8000

	defaultRequestTimeout = 10 * time.Second
)

// Connection is one configured GonoPBX backend.
//
// Connection is immutable after creation via [NewConnection]. All fields are
// private with getter methods. Connections are configured using the
// functional options pattern with [ConnectionOption] functions such as
// [WithMQTT], [WithConnectionID] and [WithRequestTimeout].
type Connection struct {
	id      string
	host    string
	port    int
	apiKey  string
	useMQTT bool
	timeout time.Duration
}

// ID returns the connection's unique id. It defaults to "host:port" and
// prefixes every entity key of the connection.
func (c Connection) ID() string {
	return c.id
}

// Host returns the backend host name or address.
func (c Connection) Host() string {
	return c.host
}

// Port returns the backend REST port.
func (c Connection) Port() int {
	return c.port
}

// APIKey returns the credential sent in the X-API-Key header.
func (c Connection) APIKey() string {
	return c.apiKey
}

// UseMQTT reports whether call events are consumed for this connection.
func (c Connection) UseMQTT() bool {
	return c.useMQTT
}

// Timeout returns the per-request timeout for backend calls.
func (c Connection) Timeout() time.Duration {
	return c.timeout
}

// Title returns the human-readable label, "GonoPBX (<host>)".
func (c Connection) Title() string {
	return fmt.Sprintf("GonoPBX (%s)", c.host)
}

// BaseURL returns the backend base URL.
func (c Connection) BaseURL() string {
	return "http://" + net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// NewConnection creates a [Connection] for the backend at host:port.
//
// A port of 0 selects [DefaultBackendPort]. Options are applied in order
// using the functional options pattern.
//
// Returns an error if the host or API key is empty or the port is out of range.
//
// Example:
//
//	conn, err := pbxbridge.NewConnection("pbx.local", 8000, os.Getenv("GONOPBX_API_KEY"),
//	    pbxbridge.WithMQTT(true),
//	)
func NewConnection(host string, port int, apiKey string, opts ...ConnectionOption) (Connection, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Connection{}, errors.New("connection host cannot be empty")
	}
	if strings.Contains(host, "://") {
		return Connection{}, fmt.Errorf("connection host %q must not include a scheme", host)
	}
	if port == 0 {
		port = DefaultBackendPort
	}
	if port < 1 || port > 65535 {
		return Connection{}, fmt.Errorf("connection port must be between 1 and 65535, got %d", port)
	}
	if apiKey == "" {
		return Connection{}, errors.New("connection api key cannot be empty")
	}

	cfg := &connectionConfig{
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Connection{}, err
		}
	}

	id := cfg.id
	if id == "" {
		id = net.JoinHostPort(host, strconv.Itoa(port))
	}

	return Connection{
		id:      id,
		host:    host,
		port:    port,
		apiKey:  apiKey,
		useMQTT: cfg.useMQTT,
		timeout: cfg.timeout,
	}, nil
}
