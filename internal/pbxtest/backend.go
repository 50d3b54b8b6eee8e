// Package pbxtest provides an in-memory GonoPBX backend for tests and demos.
package pbxtest

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Originate is a recorded POST /api/calls/originate.
type Originate struct {
	Extension string `json:"extension"`
	Number    string `json:"number"`
}

// Forward is a recorded PUT /api/callforward/{id}.
type Forward struct {
	ID      int
	Enabled bool
	Type    *string
}

// Backend is an http.Handler serving the GonoPBX REST resources from
// mutable in-memory state. It is safe for concurrent use.
type Backend struct {
	apiKey string

	mu         sync.Mutex
	health     string
	dashboard  pbxapi.DashboardStatus
	calls      pbxapi.ActiveCalls
	cdr        pbxapi.CdrStats
	voicemail  pbxapi.VoicemailStats
	failures   map[string]int
	hits       map[string]int
	originates []Originate
	forwards   []Forward
}

// NewBackend returns a healthy backend with a connected Asterisk, one online
// extension "101" (Alice), one offline extension "102" and one online trunk
// "sipgate".
func NewBackend(apiKey string) *Backend {
	return &Backend{
		apiKey: apiKey,
		health: "healthy",
		dashboard: pbxapi.DashboardStatus{
			Asterisk: "connected",
			Endpoints: []pbxapi.EndpointStatus{
				{Endpoint: "101", Type: "peer", DisplayName: "Alice", Status: "online"},
				{Endpoint: "102", Type: "peer", DisplayName: "Bob", Status: "offline"},
				{Endpoint: "sipgate", Type: "trunk", DisplayName: "Sipgate", Status: "online"},
			},
		},
		calls:     pbxapi.ActiveCalls{Count: 1},
		cdr:       pbxapi.CdrStats{CallsToday: 12, MissedCalls: 3},
		voicemail: pbxapi.VoicemailStats{Unread: 2},
		failures:  make(map[string]int),
		hits:      make(map[string]int),
	}
}

// SetHealth sets the status reported by the health resource.
func (b *Backend) SetHealth(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = status
}

// SetAsterisk sets the dashboard "asterisk" field.
func (b *Backend) SetAsterisk(state string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dashboard.Asterisk = state
}

// SetEndpoints replaces the dashboard endpoint list.
func (b *Backend) SetEndpoints(eps ...pbxapi.EndpointStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dashboard.Endpoints = append([]pbxapi.EndpointStatus(nil), eps...)
}

// SetEndpointStatus changes the status of one endpoint, if present.
func (b *Backend) SetEndpointStatus(id, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.dashboard.Endpoints {
		if b.dashboard.Endpoints[i].Endpoint == id {
			b.dashboard.Endpoints[i].Status = status
		}
	}
}

// Endpoints returns a copy of the dashboard endpoint list.
func (b *Backend) Endpoints() []pbxapi.EndpointStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pbxapi.EndpointStatus(nil), b.dashboard.Endpoints...)
}

// SetActiveCalls sets the active call count.
func (b *Backend) SetActiveCalls(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls.Count = n
}

// SetCdrStats sets the call statistics.
func (b *Backend) SetCdrStats(today, missed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cdr = pbxapi.CdrStats{CallsToday: today, MissedCalls: missed}
}

// SetVoicemailUnread sets the unread voicemail count.
func (b *Backend) SetVoicemailUnread(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voicemail.Unread = n
}

// Churn applies one random change: an endpoint flips between online and
// offline, or the call counters move. It returns a short description of the
// change for logging.
func (b *Backend) Churn(r *rand.Rand) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.dashboard.Endpoints) > 0 && r.Intn(2) == 0 {
		ep := &b.dashboard.Endpoints[r.Intn(len(b.dashboard.Endpoints))]
		if ep.Status == "online" {
			ep.Status = "offline"
		} else {
			ep.Status = "online"
		}
		return fmt.Sprintf("endpoint %s is now %s", ep.Endpoint, ep.Status)
	}

	b.calls.Count = r.Intn(5)
	b.cdr.CallsToday += b.calls.Count
	if r.Intn(4) == 0 {
		b.cdr.MissedCalls++
		b.voicemail.Unread++
	}
	return fmt.Sprintf("%d active calls, %d today, %d missed", b.calls.Count, b.cdr.CallsToday, b.cdr.MissedCalls)
}

// Fail makes requests to path answer with status until [Backend.Recover].
func (b *Backend) Fail(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = status
}

// Recover clears a failure set by [Backend.Fail].
func (b *Backend) Recover(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, path)
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// Originates returns the recorded originate requests.
func (b *Backend) Originates() []Originate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Originate(nil), b.originates...)
}

// Forwards returns the recorded forwarding toggles.
func (b *Backend) Forwards() []Forward {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Forward(nil), b.forwards...)
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	route := path
	if strings.HasPrefix(path, "/api/callforward/") {
		route = "/api/callforward/"
	}

	b.mu.Lock()
	b.hits[route]++
	status, failing := b.failures[route]
	b.mu.Unlock()

	if b.apiKey != "" && r.Header.Get(pbxapi.APIKeyHeader) != b.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid api key"})
		return
	}
	if failing {
		writeJSON(w, status, map[string]string{"detail": "simulated failure"})
		return
	}

	switch {
	case r.Method == http.MethodGet && route == pbxapi.PathHealth:
		b.mu.Lock()
		body := map[string]string{"status": b.health}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodGet && route == pbxapi.PathDashboardStatus:
		b.mu.Lock()
		body := pbxapi.DashboardStatus{
			Asterisk:  b.dashboard.Asterisk,
			Endpoints: append([]pbxapi.EndpointStatus(nil), b.dashboard.Endpoints...),
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodGet && route == pbxapi.PathActiveCalls:
		b.mu.Lock()
		body := b.calls
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodGet && route == pbxapi.PathCdrStats:
		b.mu.Lock()
		body := b.cdr
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodGet && route == pbxapi.PathVoicemailStats:
		b.mu.Lock()
		body := b.voicemail
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, body)

	case r.Method == http.MethodPost && route == pbxapi.PathOriginateCall:
		var req Originate
		if !decode(w, r, &req) {
			return
		}
		b.mu.Lock()
		b.originates = append(b.originates, req)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"status": "originated", "extension": req.Extension})

	case r.Method == http.MethodPut && route == "/api/callforward/":
		id, err := strconv.Atoi(strings.TrimPrefix(path, route))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown forwarding rule"})
			return
		}
		var req struct {
			Enabled bool    `json:"enabled"`
			Type    *string `json:"type"`
		}
		if !decode(w, r, &req) {
			return
		}
		b.mu.Lock()
		b.forwards = append(b.forwards, Forward{ID: id, Enabled: req.Enabled, Type: req.Type})
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": req.Enabled})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
