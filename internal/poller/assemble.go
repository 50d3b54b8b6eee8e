package poller

import (
	"time"

	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

// asteriskConnected is the dashboard value meaning the PBX core is up.
const asteriskConnected = "connected"

// Assemble merges one cycle's backend records into a new [snapshot.Snapshot].
//
// cdr and vm are nil when their optional fetch failed; the corresponding
// sections stay nil. Endpoints without an id are dropped, display names
// default to the id, and any type other than "trunk" is treated as a peer.
func Assemble(dashboard pbxapi.DashboardStatus, calls pbxapi.ActiveCalls, cdr *pbxapi.CdrStats, vm *pbxapi.VoicemailStats, fetchedAt time.Time) *snapshot.Snapshot {
	endpoints := make([]snapshot.Endpoint, 0, len(dashboard.Endpoints))
	for _, ep := range dashboard.Endpoints {
		if ep.Endpoint == "" {
			continue
		}

		kind := snapshot.KindPeer
		if ep.Type == string(snapshot.KindTrunk) {
			kind = snapshot.KindTrunk
		}

		name := ep.DisplayName
		if name == "" {
			name = ep.Endpoint
		}

		endpoints = append(endpoints, snapshot.Endpoint{
			ID:          ep.Endpoint,
			Kind:        kind,
			DisplayName: name,
			Status:      ep.Status,
		})
	}

	s := &snapshot.Snapshot{
		Dashboard: snapshot.Dashboard{
			AsteriskConnected: dashboard.Asterisk == asteriskConnected,
			Endpoints:         endpoints,
		},
		Calls:     snapshot.Calls{ActiveCount: calls.Count},
		FetchedAt: fetchedAt,
	}

	if cdr != nil {
		s.CdrStats = &snapshot.CdrStats{CallsToday: cdr.CallsToday, MissedCalls: cdr.MissedCalls}
	}
	if vm != nil {
		s.Voicemail = &snapshot.Voicemail{Unread: vm.Unread}
	}

	return s
}
