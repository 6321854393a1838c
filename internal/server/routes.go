// Package server wires HTTP handlers into a ServeMux for the Chatterbox
// relay via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health descriptor, WebSocket endpoint, statistics, and test page.
func SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler)
	mux.HandleFunc("/stats", StatsHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
