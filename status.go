package pbxbridge

import (
	"time"

	"github.com/jpalmerr/pbxbridge/snapshot"
)

// RefreshResult is the outcome of one refresh cycle of a connection.
//
// On success Snapshot is the new snapshot and Err is nil. On failure Err
// describes why the cycle failed and Snapshot is the last known good
// snapshot, or nil if no cycle has succeeded yet.
type RefreshResult struct {
	// ConnectionID identifies the connection that refreshed.
	ConnectionID string

	// Snapshot is the connection's current snapshot.
	Snapshot *snapshot.Snapshot

	// Err is the failure reason, nil on success.
	Err error

	// CompletedAt is when the cycle finished.
	CompletedAt time.Time
}

// Success reports whether the cycle produced a new snapshot.
func (r RefreshResult) Success() bool {
	return r.Err == nil
}

// Event is a call lifecycle event received over MQTT.
type Event struct {
	// Type is "gonopbx_call_started", "gonopbx_call_answered" or
	// "gonopbx_call_ended".
	Type string

	// Topic is the MQTT topic the event arrived on.
	Topic string

	// Data is the decoded JSON payload, or {"value": raw} when the payload
	// is not a JSON object.
	Data map[string]any

	// ReceivedAt is when the message was received.
	ReceivedAt time.Time
}

// ConnectionStatus summarizes the refresh state of a connection.
type ConnectionStatus struct {
	ID                string
	Title             string
	State             string
	LastUpdateSuccess bool
	LastError         error
	LastSuccessAt     time.Time
	UseMQTT           bool
}
