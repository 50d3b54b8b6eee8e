package config

import (
	"log/slog"

	"github.com/jpalmerr/pbxbridge"
)

// BuildConnections converts parsed configuration into SDK Connection objects,
// in file order.
func BuildConnections(cfg *Config) ([]pbxbridge.Connection, error) {
	conns := make([]pbxbridge.Connection, 0, len(cfg.Connections))
	for _, cc := range cfg.Connections {
		conn, err := buildConnection(cc)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// buildConnection converts a single ConnectionConfig to an SDK Connection.
func buildConnection(cc ConnectionConfig) (pbxbridge.Connection, error) {
	var opts []pbxbridge.ConnectionOption

	if cc.ID != "" {
		opts = append(opts, pbxbridge.WithConnectionID(cc.ID))
	}
	if cc.UseMQTT {
		opts = append(opts, pbxbridge.WithMQTT(true))
	}
	if cc.Timeout != 0 {
		opts = append(opts, pbxbridge.WithRequestTimeout(cc.Timeout.Duration()))
	}

	return pbxbridge.NewConnection(cc.Host, cc.Port, cc.APIKey, opts...)
}

// BuildOptions converts parsed configuration into bridge options, including
// the connections. Callers append their own options, such as callbacks.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]pbxbridge.Option, error) {
	conns, err := BuildConnections(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pbxbridge.Option{
		pbxbridge.WithConnections(conns...),
		pbxbridge.WithPort(cfg.Port),
		pbxbridge.WithPollingInterval(cfg.PollInterval.Duration()),
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, pbxbridge.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.MQTT.Broker != "" {
		opts = append(opts, pbxbridge.WithBroker(cfg.MQTT.Broker, cfg.MQTT.ClientID))
	}
	if logger != nil {
		opts = append(opts, pbxbridge.WithLogger(logger))
	}
	return opts, nil
}
