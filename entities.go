package pbxbridge

import (
	"sync"
	"time"

	"github.com/jpalmerr/pbxbridge/internal/store"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

// Platform is the kind of consumer entity.
type Platform string

const (
	// PlatformBinarySensor entities render a bool.
	PlatformBinarySensor Platform = "binary_sensor"

	// PlatformSensor entities render an int.
	PlatformSensor Platform = "sensor"
)

const (
	deviceClassConnectivity = "connectivity"
	stateClassMeasurement   = "measurement"

	unitCalls    = "calls"
	unitMessages = "messages"
)

// Entity is a read-only view of one snapshot field.
//
// Entities are pure functions of the current snapshot: [Entity.Value] reads
// one field and never fails.
type Entity struct {
	// Key is unique per connection: "<connection id>_<suffix>".
	Key          string
	Name         string
	Platform     Platform
	Icon         string
	DeviceClass  string
	StateClass   string
	Unit         string
	ConnectionID string

	value func(*snapshot.Snapshot) any
}

// Value renders the entity from s. A nil snapshot yields the zero value
// (false or 0).
func (e Entity) Value(s *snapshot.Snapshot) any {
	return e.value(s)
}

// StaticEntities returns the entities every connection has: the system
// connectivity sensor and the four call counters.
func StaticEntities(connectionID string) []Entity {
	sensor := func(suffix, name, icon, unit string, v func(*snapshot.Snapshot) int) Entity {
		return Entity{
			Key:          connectionID + "_" + suffix,
			Name:         "GonoPBX " + name,
			Platform:     PlatformSensor,
			Icon:         icon,
			StateClass:   stateClassMeasurement,
			Unit:         unit,
			ConnectionID: connectionID,
			value:        func(s *snapshot.Snapshot) any { return v(s) },
		}
	}

	return []Entity{
		{
			Key:          connectionID + "_system",
			Name:         "GonoPBX System",
			Platform:     PlatformBinarySensor,
			Icon:         "mdi:server-network",
			DeviceClass:  deviceClassConnectivity,
			ConnectionID: connectionID,
			value:        func(s *snapshot.Snapshot) any { return s.AsteriskConnected() },
		},
		sensor("active_calls", "Active Calls", "mdi:phone-in-talk", unitCalls, (*snapshot.Snapshot).ActiveCalls),
		sensor("calls_today", "Calls Today", "mdi:phone-log", unitCalls, (*snapshot.Snapshot).CallsToday),
		sensor("calls_missed", "Missed Calls", "mdi:phone-missed", unitCalls, (*snapshot.Snapshot).MissedCalls),
		sensor("voicemail_unread", "Voicemail Unread", "mdi:voicemail", unitMessages, (*snapshot.Snapshot).VoicemailUnread),
	}
}

// EndpointEntity returns the connectivity sensor for one extension or trunk.
// The entity reads the endpoint by id, so it renders false once the
// endpoint disappears from the dashboard.
func EndpointEntity(connectionID string, ep snapshot.Endpoint) Entity {
	id := ep.ID
	e := Entity{
		Platform:     PlatformBinarySensor,
		DeviceClass:  deviceClassConnectivity,
		ConnectionID: connectionID,
		value:        func(s *snapshot.Snapshot) any { return s.EndpointOnline(id) },
	}
	if ep.Kind == snapshot.KindTrunk {
		e.Key = connectionID + "_trunk_" + id
		e.Name = "GonoPBX Trunk " + ep.DisplayName
		e.Icon = "mdi:phone-classic"
	} else {
		e.Key = connectionID + "_ext_" + id
		e.Name = "GonoPBX Ext " + ep.DisplayName
		e.Icon = "mdi:phone-voip"
	}
	return e
}

// entitySet renders the entities of one connection into a store.
//
// Endpoint entities are discovered from successful snapshots and never
// removed while the connection is active.
type entitySet struct {
	connectionID string
	store        store.Store
	now          func() time.Time

	mu       sync.Mutex
	entities []Entity
	known    map[string]struct{}
}

func newEntitySet(connectionID string, st store.Store) *entitySet {
	es := &entitySet{
		connectionID: connectionID,
		store:        st,
		now:          time.Now,
		known:        make(map[string]struct{}),
	}
	for _, e := range StaticEntities(connectionID) {
		es.add(e)
	}
	return es
}

func (es *entitySet) add(e Entity) bool {
	if _, ok := es.known[e.Key]; ok {
		return false
	}
	es.known[e.Key] = struct{}{}
	es.entities = append(es.entities, e)
	return true
}

// Entities returns the current entities in discovery order.
func (es *entitySet) Entities() []Entity {
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make([]Entity, len(es.entities))
	copy(out, es.entities)
	return out
}

// discover adds entities for endpoints not seen before and returns how many
// were added.
func (es *entitySet) discover(s *snapshot.Snapshot) int {
	es.mu.Lock()
	defer es.mu.Unlock()
	added := 0
	for _, ep := range s.Endpoints() {
		if es.add(EndpointEntity(es.connectionID, ep)) {
			added++
		}
	}
	return added
}

// render writes every entity to the store.
//
// With a nil err all values are re-rendered from s and marked available.
// Otherwise each entity keeps the last value it rendered (or its zero value
// if it never rendered) and is marked unavailable with the error text.
func (es *entitySet) render(s *snapshot.Snapshot, err error) {
	entities := es.Entities()
	now := es.now()

	for _, e := range entities {
		state := store.EntityState{
			Key:          e.Key,
			Name:         e.Name,
			Platform:     string(e.Platform),
			ConnectionID: e.ConnectionID,
			Unit:         e.Unit,
			Icon:         e.Icon,
			DeviceClass:  e.DeviceClass,
			StateClass:   e.StateClass,
		}

		if err == nil {
			state.Value = e.Value(s)
			state.Available = true
			state.UpdatedAt = now
		} else {
			msg := err.Error()
			state.Error = &msg
			if prev, ok := es.store.Get(e.Key); ok {
				state.Value = prev.Value
				state.UpdatedAt = prev.UpdatedAt
			} else {
				state.Value = e.Value(nil)
			}
		}

		es.store.Update(state)
	}
}
