package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/pbxbridge/internal/actions"
	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
	"github.com/jpalmerr/pbxbridge/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxActionBody caps action request bodies.
	maxActionBody = 64 << 10

	// actionInterval and actionBurst bound how fast actions reach the backends.
	actionInterval = 200 * time.Millisecond
	actionBurst    = 5
)

// Actions executes user-initiated writes. *actions.Dispatcher satisfies it.
type Actions interface {
	MakeCall(ctx context.Context, req actions.MakeCallRequest) (pbxapi.Result, error)
	ToggleForwarding(ctx context.Context, req actions.ToggleForwardingRequest) (pbxapi.Result, error)
}

// ConnectionStatus is the refresh status of one backend connection.
type ConnectionStatus struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	State             string     `json:"state"`
	LastUpdateSuccess bool       `json:"last_update_success"`
	LastError         *string    `json:"last_error"`
	LastSuccessAt     *time.Time `json:"last_success_at"`
	MQTT              bool       `json:"mqtt"`
}

// ConnectionsFunc reports the status of all connections.
type ConnectionsFunc func() []ConnectionStatus

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Server handles HTTP requests for the pbxbridge API.
//
// Server provides these endpoints:
//   - GET /api/entities: Returns all current entity states as JSON
//   - GET /api/sse: Server-Sent Events stream of entity updates
//   - GET /api/connections: Returns the refresh status of every connection
//   - POST /api/services/make_call: Originates a call
//   - POST /api/services/toggle_forwarding: Enables or disables a forwarding rule
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store       store.Store
	port        int
	actions     Actions
	connections ConnectionsFunc
	limiter     *rate.Limiter
	httpServer  *http.Server
	addr        net.Addr
	stopped     chan struct{}
	logger      *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store implementation for entity states
//   - port: TCP port to listen on (0 picks a free port)
//   - act: Action executor (nil disables the service endpoints)
//   - connections: Connection status source (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, act Actions, connections ConnectionsFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       st,
		port:        port,
		actions:     act,
		connections: connections,
		limiter:     rate.NewLimiter(rate.Every(actionInterval), actionBurst),
		logger:      logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/connections", s.handleConnections)
	mux.HandleFunc("/api/services/make_call", s.rateLimited(s.handleMakeCall))
	mux.HandleFunc("/api/services/toggle_forwarding", s.rateLimited(s.handleToggleForwarding))

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.stopped = make(chan struct{})
	go func() {
		defer close(s.stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", s.addr.String())
	return nil
}

// Wait blocks until the server has shut down after its context ended.
// It returns immediately if the server was never started.
func (s *Server) Wait() {
	if s.stopped != nil {
		<-s.stopped
	}
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	return s.addr
}

// handleEntities returns all current entity states as JSON.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

// handleConnections returns the status of every configured connection.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	statuses := []ConnectionStatus{}
	if s.connections != nil {
		statuses = append(statuses, s.connections()...)
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req actions.MakeCallRequest
	if !s.decodeAction(w, r, &req) {
		return
	}
	result, err := s.actions.MakeCall(r.Context(), req)
	s.writeActionResult(w, "make_call", result, err)
}

func (s *Server) handleToggleForwarding(w http.ResponseWriter, r *http.Request) {
	var req actions.ToggleForwardingRequest
	if !s.decodeAction(w, r, &req) {
		return
	}
	result, err := s.actions.ToggleForwarding(r.Context(), req)
	s.writeActionResult(w, "toggle_forwarding", result, err)
}

// decodeAction checks method and availability and decodes the JSON body.
// It writes the error response itself and reports whether to continue.
func (s *Server) decodeAction(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return false
	}
	if s.actions == nil {
		s.writeError(w, http.StatusServiceUnavailable, "actions not available", "")
		return false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON format", err.Error())
		return false
	}
	return true
}

// writeActionResult maps dispatcher errors onto HTTP statuses.
func (s *Server) writeActionResult(w http.ResponseWriter, action string, result pbxapi.Result, err error) {
	var (
		verr *actions.ValidationError
		terr *pbxapi.TransportError
		perr *pbxapi.ParseError
	)
	switch {
	case err == nil:
		if result == nil {
			result = pbxapi.Result{}
		}
		s.writeJSON(w, http.StatusOK, result)
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, "validation failed", verr.Error())
	case errors.Is(err, actions.ErrNoConnection):
		s.writeError(w, http.StatusServiceUnavailable, "no connection available", err.Error())
	case errors.As(err, &terr), errors.As(err, &perr):
		s.logger.Warn("action failed", "action", action, "error", err.Error())
		s.writeError(w, http.StatusBadGateway, "backend request failed", err.Error())
	default:
		s.logger.Error("action failed", "action", action, "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// rateLimited rejects requests beyond the action rate with 429.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, details string) {
	s.writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// handleSSE streams entity updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked write would prevent the
// handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// initial states
	for _, state := range s.store.GetAll() {
		data, err := json.Marshal(state)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case state, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
