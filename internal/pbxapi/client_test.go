package pbxapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testAPIKey = "secret-key"

// fakeBackend serves canned bodies per path and records the last request.
type fakeBackend struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	lastKey  string
	lastBody string
	lastPath string
	lastVerb string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bodies:   make(map[string]string),
		statuses: make(map[string]int),
	}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.lastKey = r.Header.Get(APIKeyHeader)
	f.lastBody = string(body)
	f.lastPath = r.URL.Path
	f.lastVerb = r.Method
	status, hasStatus := f.statuses[r.URL.Path]
	resp, hasBody := f.bodies[r.URL.Path]
	f.mu.Unlock()

	if hasStatus {
		w.WriteHeader(status)
		return
	}
	if !hasBody {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(resp))
}

type recordedRequest struct {
	key, body, path, verb string
}

func (f *fakeBackend) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recordedRequest{key: f.lastKey, body: f.lastBody, path: f.lastPath, verb: f.lastVerb}
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	return newClientWithBaseURL(server.URL, testAPIKey, server.Client())
}

func TestNewClient_BaseURL(t *testing.T) {
	c := NewClient("pbx.local", 8000, "k", nil)
	if got := c.BaseURL(); got != "http://pbx.local:8000" {
		t.Errorf("BaseURL() = %q, want %q", got, "http://pbx.local:8000")
	}
}

func TestCheckConnection(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   bool
	}{
		{name: "healthy", body: `{"status":"healthy"}`, want: true},
		{name: "degraded", body: `{"status":"degraded"}`, want: false},
		{name: "missing status", body: `{}`, want: false},
		{name: "invalid json", body: `not json`, want: false},
		{name: "server error", status: http.StatusInternalServerError, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			if tt.status != 0 {
				backend.statuses[PathHealth] = tt.status
			} else {
				backend.bodies[PathHealth] = tt.body
			}
			client := newTestClient(t, backend)

			if got := client.CheckConnection(context.Background()); got != tt.want {
				t.Errorf("CheckConnection() = %v, want %v", got, tt.want)
			}
			// repeated checks with no backend change give the same answer
			if got := client.CheckConnection(context.Background()); got != tt.want {
				t.Errorf("second CheckConnection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckConnection_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newClientWithBaseURL(url, testAPIKey, http.DefaultClient)
	if client.CheckConnection(context.Background()) {
		t.Error("CheckConnection() = true for closed server, want false")
	}
}

func TestGetDashboardStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies[PathDashboardStatus] = `{
		"asterisk": "connected",
		"endpoints": [
			{"endpoint": "101", "type": "peer", "status": "online", "display_name": "Alice"},
			{"endpoint": "sipgate", "type": "trunk", "status": "offline"}
		]
	}`
	client := newTestClient(t, backend)

	got, err := client.GetDashboardStatus(context.Background())
	if err != nil {
		t.Fatalf("GetDashboardStatus() error = %v", err)
	}
	if got.Asterisk != "connected" {
		t.Errorf("Asterisk = %q, want connected", got.Asterisk)
	}
	if len(got.Endpoints) != 2 {
		t.Fatalf("len(Endpoints) = %d, want 2", len(got.Endpoints))
	}
	if got.Endpoints[0].DisplayName != "Alice" {
		t.Errorf("Endpoints[0].DisplayName = %q, want Alice", got.Endpoints[0].DisplayName)
	}
	if got.Endpoints[1].Type != "trunk" {
		t.Errorf("Endpoints[1].Type = %q, want trunk", got.Endpoints[1].Type)
	}
	if backend.last().key != testAPIKey {
		t.Errorf("%s header = %q, want %q", APIKeyHeader, backend.last().key, testAPIKey)
	}
}

func TestGetters_Paths(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies[PathActiveCalls] = `{"count": 2}`
	backend.bodies[PathCdrStats] = `{"calls_today": 14, "missed_calls": 3}`
	backend.bodies[PathVoicemailStats] = `{"unread": 5}`
	client := newTestClient(t, backend)
	ctx := context.Background()

	calls, err := client.GetActiveCalls(ctx)
	if err != nil || calls.Count != 2 {
		t.Errorf("GetActiveCalls() = %+v, %v; want count 2", calls, err)
	}

	cdr, err := client.GetCdrStats(ctx)
	if err != nil || cdr.CallsToday != 14 || cdr.MissedCalls != 3 {
		t.Errorf("GetCdrStats() = %+v, %v", cdr, err)
	}

	vm, err := client.GetVoicemailStats(ctx)
	if err != nil || vm.Unread != 5 {
		t.Errorf("GetVoicemailStats() = %+v, %v", vm, err)
	}
}

func TestGet_TransportError(t *testing.T) {
	backend := newFakeBackend()
	backend.statuses[PathCdrStats] = http.StatusNotFound
	client := newTestClient(t, backend)

	_, err := client.GetCdrStats(context.Background())
	if err == nil {
		t.Fatal("GetCdrStats() error = nil, want TransportError")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", te.StatusCode)
	}
	if !strings.Contains(err.Error(), PathCdrStats) {
		t.Errorf("error %q should mention path", err.Error())
	}
}

func TestGet_ParseError(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies[PathActiveCalls] = `{"count": "many"}`
	client := newTestClient(t, backend)

	_, err := client.GetActiveCalls(context.Background())

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v (%T), want *ParseError", err, err)
	}
}

func TestOriginateCall(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies[PathOriginateCall] = `{"status":"ok"}`
	client := newTestClient(t, backend)

	res, err := client.OriginateCall(context.Background(), "101", "+4930123456")
	if err != nil {
		t.Fatalf("OriginateCall() error = %v", err)
	}
	if res["status"] != "ok" {
		t.Errorf("result = %v, want status ok", res)
	}
	if backend.last().verb != http.MethodPost {
		t.Errorf("method = %s, want POST", backend.last().verb)
	}
	want := `{"extension":"101","number":"+4930123456"}`
	if backend.last().body != want {
		t.Errorf("body = %s, want %s", backend.last().body, want)
	}
}

func TestToggleForwarding_OmitsTypeWhenNil(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies["/api/callforward/5"] = `{"id":5,"enabled":true}`
	client := newTestClient(t, backend)

	if _, err := client.ToggleForwarding(context.Background(), 5, true, nil); err != nil {
		t.Fatalf("ToggleForwarding() error = %v", err)
	}
	if backend.last().verb != http.MethodPut {
		t.Errorf("method = %s, want PUT", backend.last().verb)
	}
	if backend.last().path != "/api/callforward/5" {
		t.Errorf("path = %s, want /api/callforward/5", backend.last().path)
	}
	if backend.last().body != `{"enabled":true}` {
		t.Errorf("body = %s, want {\"enabled\":true}", backend.last().body)
	}
}

func TestToggleForwarding_WithType(t *testing.T) {
	backend := newFakeBackend()
	backend.bodies["/api/callforward/7"] = `{}`
	client := newTestClient(t, backend)

	busy := "busy"
	if _, err := client.ToggleForwarding(context.Background(), 7, false, &busy); err != nil {
		t.Fatalf("ToggleForwarding() error = %v", err)
	}
	if backend.last().body != `{"enabled":false,"type":"busy"}` {
		t.Errorf("body = %s", backend.last().body)
	}
}

func TestWrite_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newClientWithBaseURL(server.URL, testAPIKey, server.Client())
	res, err := client.OriginateCall(context.Background(), "101", "102")
	if err != nil {
		t.Fatalf("OriginateCall() error = %v", err)
	}
	if len(res) != 0 {
		t.Errorf("result = %v, want empty", res)
	}
}

func TestClient_Close(t *testing.T) {
	var c *Client
	c.Close() // nil receiver must not panic

	c = NewClient("localhost", 8000, "k", nil)
	c.Close()
	c.Close()
}
