// Package config provides YAML configuration parsing for pbxbridge.
//
// This package enables running the bridge as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 30s
//
//	mqtt:
//	  broker: tcp://localhost:1883
//	  client_id: pbxbridge
//
//	connections:
//	  - host: pbx.local
//	    port: 8000
//	    api_key: ${GONOPBX_API_KEY}
//	    use_mqtt: true
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval prevents accidental hammering of the backend.
	minPollInterval = 1 * time.Second

	defaultPort         = 8080
	defaultPollInterval = 30 * time.Second
	defaultBackendPort  = 8000
)

// Config is the root configuration structure for pbxbridge.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between refresh cycles.
	// Accepts duration strings like "30s" or "1m". Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxConcurrency limits how many connections refresh at once.
	// Zero keeps the SDK default.
	MaxConcurrency int `yaml:"max_concurrency"`

	// MQTT configures the broker used for call events.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Connections lists the GonoPBX backends to poll.
	Connections []ConnectionConfig `yaml:"connections"`
}

// MQTTConfig configures the MQTT broker.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	// Supports environment variable substitution.
	Broker string `yaml:"broker"`

	// ClientID prefixes the MQTT client id. Defaults to "pbxbridge".
	ClientID string `yaml:"client_id"`
}

// ConnectionConfig defines one GonoPBX backend.
type ConnectionConfig struct {
	// ID overrides the default "host:port" connection id.
	ID string `yaml:"id"`

	// Host is the backend host name or address, without scheme.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Host string `yaml:"host"`

	// Port is the backend REST port. Defaults to 8000.
	Port int `yaml:"port"`

	// APIKey is sent in the X-API-Key header.
	// Supports environment variable substitution.
	APIKey string `yaml:"api_key"`

	// UseMQTT enables call events for this connection.
	UseMQTT bool `yaml:"use_mqtt"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// Address returns "host:port" for the connection.
func (c ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 the ":-default" part, group 3 the default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in host, api_key and the broker URL.
// Defaults are applied for Port (8080), PollInterval (30s) and each
// connection's port (8000).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	if c.MQTT.Broker != "" {
		expanded, err := expandEnvVars(c.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("mqtt.broker: %w", err)
		}
		c.MQTT.Broker = expanded

		u, err := url.Parse(c.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("mqtt.broker: invalid url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.New("mqtt.broker must have a scheme and host, e.g. tcp://localhost:1883")
		}
	}

	if len(c.Connections) == 0 {
		return errors.New("at least one connection must be defined")
	}

	seenAddr := make(map[string]int, len(c.Connections))
	seenID := make(map[string]int, len(c.Connections))
	for i := range c.Connections {
		cc := &c.Connections[i]

		host, err := expandEnvVars(cc.Host)
		if err != nil {
			return fmt.Errorf("connections[%d]: host: %w", i, err)
		}
		cc.Host = strings.TrimSpace(host)
		if cc.Host == "" {
			return fmt.Errorf("connections[%d]: host is required", i)
		}
		if strings.Contains(cc.Host, "://") {
			return fmt.Errorf("connections[%d] (%s): host must not include a scheme", i, cc.Host)
		}

		if cc.Port == 0 {
			cc.Port = defaultBackendPort
		}
		if cc.Port < 1 || cc.Port > 65535 {
			return fmt.Errorf("connections[%d] (%s): port must be between 1 and 65535, got %d", i, cc.Host, cc.Port)
		}

		key, err := expandEnvVars(cc.APIKey)
		if err != nil {
			return fmt.Errorf("connections[%d] (%s): api_key: %w", i, cc.Host, err)
		}
		cc.APIKey = key
		if cc.APIKey == "" {
			return fmt.Errorf("connections[%d] (%s): api_key is required", i, cc.Host)
		}

		if cc.Timeout != 0 && cc.Timeout.Duration() < time.Second {
			return fmt.Errorf("connections[%d] (%s): timeout must be at least 1s if specified, got %s",
				i, cc.Host, cc.Timeout.Duration())
		}

		addr := cc.Address()
		if prev, ok := seenAddr[addr]; ok {
			return fmt.Errorf("connections[%d]: %s is already configured by connections[%d]", i, addr, prev)
		}
		seenAddr[addr] = i

		id := cc.ID
		if id == "" {
			id = addr
		} else if strings.ContainsAny(id, " \t\n") {
			return fmt.Errorf("connections[%d] (%s): id must not contain whitespace", i, cc.Host)
		}
		if prev, ok := seenID[id]; ok {
			return fmt.Errorf("connections[%d]: id %q is already used by connections[%d]", i, id, prev)
		}
		seenID[id] = i

		if cc.UseMQTT && c.MQTT.Broker == "" {
			return fmt.Errorf("connections[%d] (%s): use_mqtt requires mqtt.broker", i, cc.Host)
		}
	}

	return nil
}
