package store

import "time"

// EntityState is the rendered value of one consumer entity.
//
// EntityState is optimized for JSON serialization (used by the REST API and
// SSE). It is decoupled from the entity definitions so renderers can evolve
// independently.
type EntityState struct {
	// Key is the unique entity key, e.g. "pbx.local:8000_ext_101".
	Key string `json:"key"`

	// Name is the human-readable label, e.g. "GonoPBX Ext Alice".
	Name string `json:"name"`

	// Platform is "binary_sensor" or "sensor".
	Platform string `json:"platform"`

	// ConnectionID identifies the backend connection that owns the entity.
	ConnectionID string `json:"connection_id"`

	// Value is the last rendered value: a bool for binary sensors, an int
	// for sensors. It is kept across failed refreshes.
	Value any `json:"value"`

	// Unit is the unit of measurement for sensors.
	Unit string `json:"unit,omitempty"`

	// Icon is the display icon, e.g. "mdi:phone-voip".
	Icon string `json:"icon,omitempty"`

	// DeviceClass is the display class, e.g. "connectivity".
	DeviceClass string `json:"device_class,omitempty"`

	// StateClass is "measurement" for numeric sensors.
	StateClass string `json:"state_class,omitempty"`

	// Available is false while the owning connection's last refresh failed.
	Available bool `json:"available"`

	// Error contains the refresh failure reason while unavailable.
	Error *string `json:"error"`

	// UpdatedAt is when the value was last rendered from a snapshot.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to entity updates.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a new entity state and notifies all subscribers.
	// The state is keyed by Key, so subsequent updates replace previous values.
	Update(state EntityState)

	// Get returns the state stored under key, if any.
	Get(key string) (EntityState, bool)

	// GetAll returns all currently stored entity states ordered by key.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []EntityState

	// Subscribe returns a channel that receives entity updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan EntityState

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan EntityState)
}
