// Package actions routes user-initiated write operations to a GonoPBX
// backend.
//
// A [Registry] keeps the clients of all active connections in registration
// order. A [Dispatcher] validates action payloads and sends them to the
// first registered connection, or to an explicitly named one. Actions never
// trigger a snapshot refresh; the next scheduled cycle picks up their effect.
package actions
