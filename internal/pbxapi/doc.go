// Package pbxapi provides the REST client for a GonoPBX backend.
//
// This package is internal to pbxbridge and translates the logical backend
// operations (dashboard status, active calls, CDR and voicemail statistics,
// originate call, toggle forwarding) into HTTP requests against
// http://{host}:{port}, attaching the X-API-Key header to every request.
//
// The main components are:
//
//   - [Client]: stateless request/response wrapper, no retries or caching
//   - [TransportError]: network failure or non-2xx response
//   - [ParseError]: response body that does not decode into the typed record
//
// Timeouts and connection reuse belong to the shared [http.Client] returned by
// [NewHTTPClient]; the client itself never overrides them.
package pbxapi
