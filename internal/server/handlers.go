// Package server exposes HTTP handlers, including WebSocket upgrades, the
// health descriptor, server statistics, and the built-in test page.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// serverVersion is reported by the health descriptor.
const serverVersion = "1.0.0"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the HTTP connection and admits the new client to
// the hub in the Unjoined state. The first frame the client sends is its join
// request.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)

	// Register the client with the hub; the hub will launch the pump
	// goroutines. A hub that is shutting down no longer drains this channel.
	select {
	case client.hub.register <- client:
	case <-client.hub.ctx.Done():
		_ = conn.Close()
	}
}

type healthResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// HealthHandler serves the root health descriptor consumed by monitors and
// the web client's connectivity check.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	response := healthResponse{
		Status:  "online",
		Message: "Chatterbox relay is running",
		Version: serverVersion,
		Features: []string{
			"Real-time messaging",
			"Multiple chat rooms",
			"Typing indicators",
			"Join/leave notifications",
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Warn("error writing health response", "error", err)
	}
}

// StatsHandler reports the aggregate connection and room counts computed by
// scanning the connection registry.
func StatsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
		slog.Warn("error writing stats response", "error", err)
	}
}
