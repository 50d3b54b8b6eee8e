package pbxbridge

import (
	"context"
	"io"
	"log/slog"

	"github.com/jpalmerr/pbxbridge/internal/actions"
	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
)

// ErrNoConnection is returned by actions when no connection can serve them.
var ErrNoConnection = actions.ErrNoConnection

// MakeCall originates a call from extension to number.
//
// The call is sent to the connection whose id is connectionID, or to the
// first of conns when connectionID is empty. Actions never refresh any
// snapshot.
func MakeCall(ctx context.Context, conns []Connection, connectionID, extension, number string) (map[string]any, error) {
	d, release := oneShotDispatcher(conns)
	defer release()

	result, err := d.MakeCall(ctx, actions.MakeCallRequest{
		ConnectionID: connectionID,
		Extension:    &extension,
		Number:       &number,
	})
	return result, err
}

// ToggleForwarding enables or disables the forwarding rule forwardID.
// forwardType is only sent when non-nil. Connection selection follows
// [MakeCall].
func ToggleForwarding(ctx context.Context, conns []Connection, connectionID string, forwardID int, enabled bool, forwardType *string) (map[string]any, error) {
	d, release := oneShotDispatcher(conns)
	defer release()

	result, err := d.ToggleForwarding(ctx, actions.ToggleForwardingRequest{
		ConnectionID: connectionID,
		ForwardID:    &forwardID,
		Enabled:      &enabled,
		Type:         forwardType,
	})
	return result, err
}

// oneShotDispatcher registers a client per connection, in order.
func oneShotDispatcher(conns []Connection) (*actions.Dispatcher, func()) {
	registry := actions.NewRegistry()
	clients := make([]*pbxapi.Client, 0, len(conns))
	for _, c := range conns {
		client := newClient(c)
		clients = append(clients, client)
		registry.Register(c.id, client)
	}
	release := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	return actions.NewDispatcher(registry, slog.New(slog.NewTextHandler(io.Discard, nil))), release
}
