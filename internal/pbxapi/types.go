package pbxapi

// DashboardStatus is the body of GET /api/dashboard/status.
type DashboardStatus struct {
	// Asterisk is "connected" when the PBX core is reachable.
	Asterisk string `json:"asterisk"`

	// Endpoints lists SIP peers and trunks in backend order.
	Endpoints []EndpointStatus `json:"endpoints"`
}

// EndpointStatus is one entry of [DashboardStatus.Endpoints].
type EndpointStatus struct {
	Endpoint    string `json:"endpoint"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// ActiveCalls is the body of GET /api/calls/active.
type ActiveCalls struct {
	Count int `json:"count"`
}

// CdrStats is the body of GET /api/cdr/stats.
type CdrStats struct {
	CallsToday  int `json:"calls_today"`
	MissedCalls int `json:"missed_calls"`
}

// VoicemailStats is the body of GET /api/voicemail/stats.
type VoicemailStats struct {
	Unread int `json:"unread"`
}

// Result is the loosely-typed body returned by the write operations.
// The backend is authoritative for its content.
type Result map[string]any

// healthStatus is the body of GET /api/health.
type healthStatus struct {
	Status string `json:"status"`
}

// originateRequest is the body of POST /api/calls/originate.
type originateRequest struct {
	Extension string `json:"extension"`
	Number    string `json:"number"`
}

// forwardingRequest is the body of PUT /api/callforward/{id}.
// Type is omitted entirely when not supplied.
type forwardingRequest struct {
	Enabled bool    `json:"enabled"`
	Type    *string `json:"type,omitempty"`
}
