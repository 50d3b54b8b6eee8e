// Package snapshot defines the immutable, per-cycle view of a GonoPBX backend.
//
// A [Snapshot] is assembled once per refresh cycle by the coordinator and then
// shared by reference with every consumer. Consumers must treat it as
// read-only; a new cycle produces a new Snapshot rather than mutating the old
// one, so readers always observe a complete value.
//
// Optional sections ([CdrStats], [Voicemail]) are nil when their fetch failed.
// All accessors are total: they never panic on a nil Snapshot or a missing
// section and fall back to zero values instead.
package snapshot

import (
	"encoding/json"
	"time"
)

// EndpointKind distinguishes SIP peers (extensions) from trunks.
type EndpointKind string

const (
	// KindPeer is a SIP extension registered on the PBX.
	KindPeer EndpointKind = "peer"

	// KindTrunk is an upstream SIP trunk.
	KindTrunk EndpointKind = "trunk"
)

// StatusOnline is the only endpoint status treated as "on".
const StatusOnline = "online"

// Endpoint identifies one SIP peer or trunk.
type Endpoint struct {
	// ID is the stable identifier used for entity keying. Never empty.
	ID string `json:"id"`

	// Kind is either [KindPeer] or [KindTrunk].
	Kind EndpointKind `json:"kind"`

	// DisplayName is the human-readable name, defaulting to ID.
	DisplayName string `json:"display_name"`

	// Status is the backend-reported status; "online" means reachable.
	Status string `json:"status"`
}

// Online reports whether the endpoint status is "online".
func (e Endpoint) Online() bool {
	return e.Status == StatusOnline
}

// Dashboard is the system-level section of a snapshot.
type Dashboard struct {
	AsteriskConnected bool       `json:"asterisk_connected"`
	Endpoints         []Endpoint `json:"endpoints"`
}

// Calls holds the active call count.
type Calls struct {
	ActiveCount int `json:"active_count"`
}

// CdrStats holds call detail record statistics.
type CdrStats struct {
	CallsToday  int `json:"calls_today"`
	MissedCalls int `json:"missed_calls"`
}

// Voicemail holds voicemail statistics.
type Voicemail struct {
	Unread int `json:"unread"`
}

// Snapshot is the aggregated result of one successful refresh cycle.
type Snapshot struct {
	Dashboard Dashboard
	Calls     Calls

	// CdrStats is nil when the optional CDR fetch failed.
	CdrStats *CdrStats

	// Voicemail is nil when the optional voicemail fetch failed.
	Voicemail *Voicemail

	// FetchedAt is when the cycle that produced this snapshot completed.
	FetchedAt time.Time
}

// emptySection renders a missing optional section as {} rather than null.
var emptySection = json.RawMessage("{}")

// MarshalJSON renders the snapshot with its four named sections.
// Missing optional sections are encoded as empty objects.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	endpoints := s.Dashboard.Endpoints
	if endpoints == nil {
		endpoints = []Endpoint{}
	}

	var cdr any = emptySection
	if s.CdrStats != nil {
		cdr = s.CdrStats
	}
	var vm any = emptySection
	if s.Voicemail != nil {
		vm = s.Voicemail
	}

	return json.Marshal(struct {
		Dashboard Dashboard `json:"dashboard"`
		Calls     Calls     `json:"calls"`
		CdrStats  any       `json:"cdr_stats"`
		Voicemail any       `json:"voicemail"`
		FetchedAt time.Time `json:"fetched_at"`
	}{
		Dashboard: Dashboard{AsteriskConnected: s.Dashboard.AsteriskConnected, Endpoints: endpoints},
		Calls:     s.Calls,
		CdrStats:  cdr,
		Voicemail: vm,
		FetchedAt: s.FetchedAt,
	})
}

// AsteriskConnected reports the system connectivity flag.
func (s *Snapshot) AsteriskConnected() bool {
	if s == nil {
		return false
	}
	return s.Dashboard.AsteriskConnected
}

// Endpoints returns a copy of the endpoint list in backend order.
func (s *Snapshot) Endpoints() []Endpoint {
	if s == nil || len(s.Dashboard.Endpoints) == 0 {
		return nil
	}
	out := make([]Endpoint, len(s.Dashboard.Endpoints))
	copy(out, s.Dashboard.Endpoints)
	return out
}

// FindEndpoint returns the endpoint with the given id, if present.
func (s *Snapshot) FindEndpoint(id string) (Endpoint, bool) {
	if s == nil {
		return Endpoint{}, false
	}
	for _, ep := range s.Dashboard.Endpoints {
		if ep.ID == id {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// EndpointOnline reports whether the endpoint with the given id is online.
// An unknown id yields false.
func (s *Snapshot) EndpointOnline(id string) bool {
	ep, ok := s.FindEndpoint(id)
	return ok && ep.Online()
}

// ActiveCalls returns the active call count, or 0.
func (s *Snapshot) ActiveCalls() int {
	if s == nil {
		return 0
	}
	return s.Calls.ActiveCount
}

// CallsToday returns today's call count, or 0 when CDR stats are missing.
func (s *Snapshot) CallsToday() int {
	if s == nil || s.CdrStats == nil {
		return 0
	}
	return s.CdrStats.CallsToday
}

// MissedCalls returns the missed call count, or 0 when CDR stats are missing.
func (s *Snapshot) MissedCalls() int {
	if s == nil || s.CdrStats == nil {
		return 0
	}
	return s.CdrStats.MissedCalls
}

// VoicemailUnread returns the unread voicemail count, or 0 when missing.
func (s *Snapshot) VoicemailUnread() int {
	if s == nil || s.Voicemail == nil {
		return 0
	}
	return s.Voicemail.Unread
}
