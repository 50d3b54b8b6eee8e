package pbxapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBodySize = 1 << 20 // 1MB

// APIKeyHeader carries the static backend API key.
const APIKeyHeader = "X-API-Key"

// REST resources consumed from the backend. Paths are fixed.
const (
	PathHealth          = "/api/health"
	PathDashboardStatus = "/api/dashboard/status"
	PathActiveCalls     = "/api/calls/active"
	PathCdrStats        = "/api/cdr/stats"
	PathVoicemailStats  = "/api/voicemail/stats"
	PathOriginateCall   = "/api/calls/originate"
	pathCallForward     = "/api/callforward/"
)

// connection pooling limits shared by every backend connection
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// NewHTTPClient returns the pooled [http.Client] shared by backend clients.
//
// It sets no overall request timeout; cycles inherit cancellation from the
// caller's context and otherwise the transport defaults.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			DisableKeepAlives:   false,
		},
	}
}

// Client talks to one GonoPBX backend.
//
// Client is stateless apart from its immutable base URL and API key, and is
// safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a [Client] for http://{host}:{port}.
//
// If httpClient is nil a new pooled client from [NewHTTPClient] is used.
func NewClient(host string, port int, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		baseURL:    "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// newClientWithBaseURL is used by tests pointing at an httptest server.
func newClientWithBaseURL(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckConnection reports whether the backend health resource answers with
// status "healthy". Any transport or decode failure yields false.
func (c *Client) CheckConnection(ctx context.Context) bool {
	var h healthStatus
	if err := c.do(ctx, http.MethodGet, PathHealth, nil, &h); err != nil {
		return false
	}
	return h.Status == "healthy"
}

// GetDashboardStatus fetches peers, trunks and system state.
func (c *Client) GetDashboardStatus(ctx context.Context) (DashboardStatus, error) {
	var out DashboardStatus
	err := c.do(ctx, http.MethodGet, PathDashboardStatus, nil, &out)
	return out, err
}

// GetActiveCalls fetches the currently active calls.
func (c *Client) GetActiveCalls(ctx context.Context) (ActiveCalls, error) {
	var out ActiveCalls
	err := c.do(ctx, http.MethodGet, PathActiveCalls, nil, &out)
	return out, err
}

// GetCdrStats fetches call detail record statistics.
func (c *Client) GetCdrStats(ctx context.Context) (CdrStats, error) {
	var out CdrStats
	err := c.do(ctx, http.MethodGet, PathCdrStats, nil, &out)
	return out, err
}

// GetVoicemailStats fetches voicemail statistics.
func (c *Client) GetVoicemailStats(ctx context.Context) (VoicemailStats, error) {
	var out VoicemailStats
	err := c.do(ctx, http.MethodGet, PathVoicemailStats, nil, &out)
	return out, err
}

// OriginateCall asks the backend to ring extension and connect it to number.
// Neither argument is validated locally.
func (c *Client) OriginateCall(ctx context.Context, extension, number string) (Result, error) {
	out := Result{}
	err := c.do(ctx, http.MethodPost, PathOriginateCall, originateRequest{Extension: extension, Number: number}, &out)
	return out, err
}

// ToggleForwarding enables or disables the forwarding rule forwardID.
// When forwardType is nil the request body carries no type field.
func (c *Client) ToggleForwarding(ctx context.Context, forwardID int, enabled bool, forwardType *string) (Result, error) {
	out := Result{}
	path := pathCallForward + strconv.Itoa(forwardID)
	err := c.do(ctx, http.MethodPut, path, forwardingRequest{Enabled: enabled, Type: forwardType}, &out)
	return out, err
}

// do performs one request and decodes the response body into out.
// An empty body leaves out untouched.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	if len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// Close releases idle connections held by the underlying transport.
// The client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
