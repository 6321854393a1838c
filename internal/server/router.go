// Package server dispatches decoded inbound events to the join, chat,
// typing, and room-switch handlers according to each connection's session
// state.
package server

import (
	"log/slog"
	"strings"
)

// sessionState tags where a connection is in its lifecycle. Making the state
// explicit lets illegal transitions, such as a chat frame from a connection
// that never joined, be rejected instead of left undefined. The zero value is
// stateUnjoined; the field is owned by the hub loop and changes only there.
type sessionState int

const (
	stateUnjoined sessionState = iota
	stateJoined
	stateClosed
)

// Identity defaults applied when a join request omits or blanks its fields.
const (
	defaultUsername = "Anonymous"
	defaultRoom     = "general"
)

// route dispatches one decoded inbound message. The first frame on a
// connection is always treated as the join request; later frames are
// dispatched on their type discriminator.
func (h *Hub) route(client *Client, msg InboundMessage) {
	if client == nil {
		return
	}

	switch client.state {
	case stateUnjoined:
		h.handleJoin(client, msg)
	case stateJoined:
		switch msg.Type {
		case messageTypeChat:
			h.handleChat(client, msg)
		case messageTypeTyping:
			h.handleTyping(client, true)
		case messageTypeStopTyping:
			h.handleTyping(client, false)
		case messageTypeSwitchRoom:
			h.handleSwitchRoom(client, msg)
		default:
			slog.Debug("ignoring message with unknown type", "client", client.id, "type", msg.Type)
		}
	case stateClosed:
		// Late frame from a connection already torn down; nothing to do.
	}
}

// handleJoin registers the connection under its requested identity, replays
// the room's recent history to the newcomer, and announces the arrival to the
// whole room, the newcomer included. Missing or blank identity fields are
// defaulted, never rejected.
func (h *Hub) handleJoin(client *Client, msg InboundMessage) {
	if msg.Type != "" {
		slog.Warn("rejecting typed frame from unjoined client", "client", client.id, "type", msg.Type)
		return
	}

	username := strings.TrimSpace(msg.Username)
	if username == "" {
		username = defaultUsername
	}
	room := strings.TrimSpace(msg.Room)
	if room == "" {
		room = defaultRoom
	}

	h.mu.Lock()
	h.registry.register(client, username, room)
	h.rooms.addUser(room, username)
	h.mu.Unlock()
	client.state = stateJoined

	slog.Info("user joined room", "client", client.id, "user", username, "room", room)

	h.replayHistory(client, room)
	h.broadcastSystem(room, username+" joined the chat")
	h.broadcastStats(room)
}

// handleChat trims and relays one chat message to the rest of the sender's
// room. Whitespace-only messages are dropped silently.
func (h *Hub) handleChat(client *Client, msg InboundMessage) {
	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return
	}

	h.mu.RLock()
	record, ok := h.registry.lookup(client)
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload := marshalEvent(newChatEvent(record.username, text))
	if payload == nil {
		return
	}

	h.mu.Lock()
	h.rooms.appendHistory(record.room, payload, currentConfig().HistoryLimit)
	h.mu.Unlock()

	slog.Debug("chat message", "room", record.room, "user", record.username)
	h.broadcastRoom(record.room, payload, client)
}

// handleTyping updates the sender's typing flag and pushes the refreshed
// indicator to everyone in the room.
func (h *Hub) handleTyping(client *Client, isTyping bool) {
	h.mu.RLock()
	record, ok := h.registry.lookup(client)
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.mu.Lock()
	h.rooms.setTyping(record.room, record.username, isTyping)
	h.mu.Unlock()

	h.broadcastTyping(record.room)
}

// handleSwitchRoom moves the sender between rooms: the old room sees a
// departure and refreshed presence, the new room sees an arrival, and the
// mover catches up on the new room's history.
func (h *Hub) handleSwitchRoom(client *Client, msg InboundMessage) {
	newRoom := strings.TrimSpace(msg.NewRoom)
	if newRoom == "" {
		return
	}

	h.mu.RLock()
	record, ok := h.registry.lookup(client)
	h.mu.RUnlock()
	if !ok || record.room == newRoom {
		return
	}
	oldRoom := record.room
	username := record.username

	h.mu.Lock()
	h.rooms.setTyping(oldRoom, username, false)
	h.rooms.removeUser(oldRoom, username)
	h.registry.moveRoom(client, newRoom)
	h.rooms.addUser(newRoom, username)
	h.mu.Unlock()

	slog.Info("user switched room", "client", client.id, "user", username, "from", oldRoom, "to", newRoom)

	h.broadcastSystem(oldRoom, username+" left the chat")
	h.broadcastStats(oldRoom)
	h.broadcastTyping(oldRoom)

	h.replayHistory(client, newRoom)
	h.broadcastSystem(newRoom, username+" joined the chat")
	h.broadcastStats(newRoom)
}
