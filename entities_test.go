package pbxbridge

import (
	"errors"
	"testing"
	"time"

	"github.com/jpalmerr/pbxbridge/internal/store"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

// scenarioSnapshot is a connected PBX with peer 101 online, two active calls
// and no CDR or voicemail sections.
func scenarioSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Dashboard: snapshot.Dashboard{
			AsteriskConnected: true,
			Endpoints: []snapshot.Endpoint{
				{ID: "101", Kind: snapshot.KindPeer, DisplayName: "Alice", Status: "online"},
			},
		},
		Calls: snapshot.Calls{ActiveCount: 2},
	}
}

func entityByKey(t *testing.T, entities []Entity, key string) Entity {
	t.Helper()
	for _, e := range entities {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("entity %q not found", key)
	return Entity{}
}

func TestStaticEntities(t *testing.T) {
	entities := StaticEntities("pbx:8000")

	tests := []struct {
		key         string
		name        string
		platform    Platform
		icon        string
		unit        string
		deviceClass string
	}{
		{"pbx:8000_system", "GonoPBX System", PlatformBinarySensor, "mdi:server-network", "", "connectivity"},
		{"pbx:8000_active_calls", "GonoPBX Active Calls", PlatformSensor, "mdi:phone-in-talk", "calls", ""},
		{"pbx:8000_calls_today", "GonoPBX Calls Today", PlatformSensor, "mdi:phone-log", "calls", ""},
		{"pbx:8000_calls_missed", "GonoPBX Missed Calls", PlatformSensor, "mdi:phone-missed", "calls", ""},
		{"pbx:8000_voicemail_unread", "GonoPBX Voicemail Unread", PlatformSensor, "mdi:voicemail", "messages", ""},
	}

	if len(entities) != len(tests) {
		t.Fatalf("StaticEntities() = %d entities, want %d", len(entities), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			e := entityByKey(t, entities, tt.key)
			if e.Name != tt.name {
				t.Errorf("Name = %q, want %q", e.Name, tt.name)
			}
			if e.Platform != tt.platform {
				t.Errorf("Platform = %q, want %q", e.Platform, tt.platform)
			}
			if e.Icon != tt.icon {
				t.Errorf("Icon = %q, want %q", e.Icon, tt.icon)
			}
			if e.Unit != tt.unit {
				t.Errorf("Unit = %q, want %q", e.Unit, tt.unit)
			}
			if e.DeviceClass != tt.deviceClass {
				t.Errorf("DeviceClass = %q, want %q", e.DeviceClass, tt.deviceClass)
			}
			if e.Platform == PlatformSensor && e.StateClass != "measurement" {
				t.Errorf("StateClass = %q, want measurement", e.StateClass)
			}
			if e.ConnectionID != "pbx:8000" {
				t.Errorf("ConnectionID = %q", e.ConnectionID)
			}
		})
	}
}

func TestStaticEntities_ScenarioValues(t *testing.T) {
	s := scenarioSnapshot()
	entities := StaticEntities("c")

	want := map[string]any{
		"c_system":           true,
		"c_active_calls":     2,
		"c_calls_today":      0,
		"c_calls_missed":     0,
		"c_voicemail_unread": 0,
	}
	for key, v := range want {
		if got := entityByKey(t, entities, key).Value(s); got != v {
			t.Errorf("%s = %v, want %v", key, got, v)
		}
	}
}

func TestStaticEntities_NilSnapshot(t *testing.T) {
	for _, e := range StaticEntities("c") {
		got := e.Value(nil)
		switch e.Platform {
		case PlatformBinarySensor:
			if got != false {
				t.Errorf("%s = %v, want false", e.Key, got)
			}
		case PlatformSensor:
			if got != 0 {
				t.Errorf("%s = %v, want 0", e.Key, got)
			}
		}
	}
}

func TestEndpointEntity(t *testing.T) {
	s := scenarioSnapshot()

	ext := EndpointEntity("c", snapshot.Endpoint{ID: "101", Kind: snapshot.KindPeer, DisplayName: "Alice"})
	if ext.Key != "c_ext_101" || ext.Name != "GonoPBX Ext Alice" || ext.Icon != "mdi:phone-voip" {
		t.Errorf("extension entity = %+v", ext)
	}
	if ext.DeviceClass != "connectivity" || ext.Platform != PlatformBinarySensor {
		t.Errorf("extension entity class = %q/%q", ext.DeviceClass, ext.Platform)
	}
	if ext.Value(s) != true {
		t.Error("ext 101 should be online")
	}

	trunk := EndpointEntity("c", snapshot.Endpoint{ID: "sipgate", Kind: snapshot.KindTrunk, DisplayName: "Sipgate"})
	if trunk.Key != "c_trunk_sipgate" || trunk.Name != "GonoPBX Trunk Sipgate" || trunk.Icon != "mdi:phone-classic" {
		t.Errorf("trunk entity = %+v", trunk)
	}
	// absent from the snapshot
	if trunk.Value(s) != false {
		t.Error("absent trunk should render false")
	}
	if trunk.Value(nil) != false {
		t.Error("nil snapshot should render false")
	}
}

func TestEntitySet_DiscoverExtendsNeverRemoves(t *testing.T) {
	es := newEntitySet("c", store.NewMemoryStore())
	if got := len(es.Entities()); got != 5 {
		t.Fatalf("initial entities = %d, want 5", got)
	}

	if n := es.discover(scenarioSnapshot()); n != 1 {
		t.Errorf("first discover added %d, want 1", n)
	}

	// same endpoint again plus a new trunk
	s := scenarioSnapshot()
	s.Dashboard.Endpoints = append(s.Dashboard.Endpoints,
		snapshot.Endpoint{ID: "sipgate", Kind: snapshot.KindTrunk, DisplayName: "Sipgate", Status: "online"})
	if n := es.discover(s); n != 1 {
		t.Errorf("second discover added %d, want 1", n)
	}

	// endpoint gone from backend: entity stays and renders false
	empty := &snapshot.Snapshot{}
	if n := es.discover(empty); n != 0 {
		t.Errorf("discover of empty snapshot added %d, want 0", n)
	}
	entities := es.Entities()
	if len(entities) != 7 {
		t.Fatalf("entities = %d, want 7", len(entities))
	}
	if entityByKey(t, entities, "c_ext_101").Value(empty) != false {
		t.Error("vanished endpoint should render false")
	}
}

func TestEntitySet_RenderLastKnownGood(t *testing.T) {
	st := store.NewMemoryStore()
	es := newEntitySet("c", st)
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	es.now = func() time.Time { return first }

	s := scenarioSnapshot()
	es.discover(s)
	es.render(s, nil)

	got, ok := st.Get("c_active_calls")
	if !ok || got.Value != 2 || !got.Available || got.Error != nil {
		t.Fatalf("after success: %+v", got)
	}
	if got.Unit != "calls" || got.StateClass != "measurement" {
		t.Errorf("metadata = %+v", got)
	}

	es.now = func() time.Time { return first.Add(time.Minute) }
	es.render(s, errors.New("error communicating with GonoPBX: timeout"))

	for _, key := range []string{"c_active_calls", "c_system", "c_ext_101"} {
		got, _ := st.Get(key)
		if got.Available {
			t.Errorf("%s should be unavailable after failure", key)
		}
		if got.Error == nil || *got.Error != "error communicating with GonoPBX: timeout" {
			t.Errorf("%s Error = %v", key, got.Error)
		}
		if !got.UpdatedAt.Equal(first) {
			t.Errorf("%s UpdatedAt = %v, want last success %v", key, got.UpdatedAt, first)
		}
	}
	if got, _ := st.Get("c_active_calls"); got.Value != 2 {
		t.Errorf("active calls kept value = %v, want 2", got.Value)
	}
	if got, _ := st.Get("c_ext_101"); got.Value != true {
		t.Errorf("ext 101 kept value = %v, want true", got.Value)
	}
}

func TestEntitySet_RenderFailureBeforeFirstSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	es := newEntitySet("c", st)

	es.render(nil, errors.New("boom"))

	all := st.GetAll()
	if len(all) != 5 {
		t.Fatalf("entities = %d, want the 5 static ones", len(all))
	}
	for _, s := range all {
		if s.Available {
			t.Errorf("%s should be unavailable", s.Key)
		}
		if s.Value != false && s.Value != 0 {
			t.Errorf("%s Value = %v, want zero value", s.Key, s.Value)
		}
	}
}
