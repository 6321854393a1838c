// Package server implements the core of the Chatterbox relay: the connection
// registry, per-room state, broadcast fan-out, and the WebSocket and HTTP
// surfaces in front of them.
//
// The implementation is organized into specialized files for configuration,
// the hub, the registry and room store, clients, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
