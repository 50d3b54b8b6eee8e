// Package server provides the HTTP API for pbxbridge.
//
// This package is internal to pbxbridge and handles all HTTP concerns:
//
//   - REST API: current entity states at "/api/entities" and per-connection
//     refresh status at "/api/connections"
//   - Server-Sent Events: real-time entity updates at "/api/sse"
//   - Actions: "/api/services/make_call" and "/api/services/toggle_forwarding",
//     rate limited and validated before they reach a backend
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the pbxbridge library should not need to interact with this
// package directly. The server is started automatically by [pbxbridge.Bridge.Start].
package server
