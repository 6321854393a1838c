// Package server defines the wire message types exchanged with chat clients
// and utility helpers shared across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound message type discriminators. The initial join frame carries no type.
const (
	messageTypeChat       = "chat"
	messageTypeTyping     = "typing"
	messageTypeStopTyping = "stop_typing"
	messageTypeSwitchRoom = "switch_room"
)

// Outbound event type discriminators.
const (
	eventTypeSystem   = "system"
	eventTypeChat     = "chat"
	eventTypeTyping   = "typing"
	eventTypeUserList = "user_list"
	eventTypeStats    = "stats"
)

// InboundMessage is the decoded form of a client-to-server frame. The first
// frame on a connection is the join request and carries username and room;
// every later frame is dispatched on Type.
type InboundMessage struct {
	Type     string `json:"type,omitempty"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Message  string `json:"message,omitempty"`
	NewRoom  string `json:"new_room,omitempty"`
}

// SystemEvent announces joins, departures, and other room-level notices.
type SystemEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChatEvent carries one user-authored message to the rest of the room.
type ChatEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// TypingEvent lists the users currently composing a message. Each recipient
// gets a list with their own name filtered out.
type TypingEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// UserListEvent carries the display names currently present in a room.
type UserListEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// StatsEvent reports the occupant count of a room.
type StatsEvent struct {
	Type   string `json:"type"`
	Online int    `json:"online"`
}

// eventTimestamp matches the HH:MM wall-clock format the web client renders.
func eventTimestamp() string {
	return time.Now().Format("15:04")
}

func newSystemEvent(message string) SystemEvent {
	return SystemEvent{Type: eventTypeSystem, Message: message, Timestamp: eventTimestamp()}
}

func newChatEvent(username, message string) ChatEvent {
	return ChatEvent{Type: eventTypeChat, Username: username, Message: message, Timestamp: eventTimestamp()}
}

// marshalEvent encodes an outbound event once so the same byte payload can be
// fanned out to every recipient. A nil result means "nothing to send" and is
// skipped by the broadcast path.
func marshalEvent(event any) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil
	}
	return payload
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
