// Package server coordinates client registration, room membership, and event
// fan-out for the Chatterbox relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// inboundEvent pairs a decoded client frame with its originating connection
// for dispatch on the hub loop.
type inboundEvent struct {
	client  *Client
	message InboundMessage
}

// Hub owns the connection registry and the room state store. All mutations
// happen on the Run loop, one mutual-exclusion domain; the RWMutex guards the
// snapshot reads performed by the /stats handler and by safeSend.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	registry *registry
	rooms    *roomStore

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates and initializes a new Hub instance. The returned Hub is
// ready to manage connections once Run is started in its own goroutine.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		registry:   newRegistry(),
		rooms:      newRoomStore(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// Run starts the hub's main event loop, handling client registration,
// disconnect cleanup, and inbound event dispatch. This method should be
// called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.disconnect(client)

		case event := <-h.inbound:
			h.route(event.client, event.message)
		}
	}
}

// addClient admits a freshly upgraded connection in the Unjoined state and
// launches its pump goroutines.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	client.closed = false
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	slog.Info("client connected", "client", client.id, "addr", client.addr, "total", total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// disconnect runs the unconditional cleanup transition: the client leaves the
// liveness map, the registry, and its room, and the room is notified of the
// departure. It is safe for clients that never joined and idempotent across
// duplicate unregister events, so it can be reached from any state.
func (h *Hub) disconnect(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	client.state = stateClosed
	username, room := h.registry.unregister(client)
	if room != "" {
		h.rooms.removeUser(room, username)
	}
	total := len(h.clients)
	h.mu.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)

	slog.Info("client disconnected", "client", client.id, "user", username, "room", room, "total", total)

	if room == "" {
		return
	}
	message := username + " left the chat"
	if client.errored.Load() {
		message = username + " left the chat (connection error)"
	}
	h.broadcastSystem(room, message)
	h.broadcastStats(room)
}

// safeSend queues payload on a single client without ever blocking the hub.
// A missing, closed, or saturated client counts as a failed send.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the send attempt so the closed check and the
	// channel write cannot race with disconnect.
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// broadcastRoom delivers payload to every connection currently in room,
// except exclude when non-nil. Per-connection failures are isolated: one bad
// recipient never aborts delivery to the rest and never surfaces an error to
// the caller. Failed recipients are cleaned up after the sweep.
func (h *Hub) broadcastRoom(room string, payload []byte, exclude *Client) {
	if payload == nil {
		return
	}

	h.mu.RLock()
	targets := h.registry.connectionsInRoom(room)
	h.mu.RUnlock()

	var failed []*Client
	for _, client := range targets {
		if exclude != nil && client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.dropFailed(failed)
}

// dropFailed tears down clients whose sends failed. Each teardown may notify
// the departed client's room; the recursion terminates because every call
// removes one client and duplicate disconnects are no-ops.
func (h *Hub) dropFailed(failed []*Client) {
	for _, client := range failed {
		slog.Warn("dropping unresponsive client", "client", client.id, "addr", client.addr)
		h.disconnect(client)
	}
}

// broadcastSystem records a system notice in room history and delivers it to
// every occupant, the originator included.
func (h *Hub) broadcastSystem(room, message string) {
	payload := marshalEvent(newSystemEvent(message))
	if payload == nil {
		return
	}
	h.mu.Lock()
	h.rooms.appendHistory(room, payload, currentConfig().HistoryLimit)
	h.mu.Unlock()
	h.broadcastRoom(room, payload, nil)
}

// broadcastStats sends the occupant count and the current user list to room.
func (h *Hub) broadcastStats(room string) {
	h.mu.RLock()
	count := h.rooms.userCount(room)
	users := h.rooms.userList(room)
	h.mu.RUnlock()

	h.broadcastRoom(room, marshalEvent(StatsEvent{Type: eventTypeStats, Online: count}), nil)
	h.broadcastRoom(room, marshalEvent(UserListEvent{Type: eventTypeUserList, Users: users}), nil)
}

// broadcastTyping delivers to each occupant of room the list of typing users
// minus the recipient's own name, so nobody sees themselves composing.
func (h *Hub) broadcastTyping(room string) {
	h.mu.RLock()
	targets := h.registry.connectionsInRoom(room)
	payloads := make(map[*Client][]byte, len(targets))
	for _, client := range targets {
		record, ok := h.registry.lookup(client)
		if !ok {
			continue
		}
		payloads[client] = marshalEvent(TypingEvent{
			Type:  eventTypeTyping,
			Users: h.rooms.typingDisplayList(room, record.username),
		})
	}
	h.mu.RUnlock()

	var failed []*Client
	for client, payload := range payloads {
		if payload == nil {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.dropFailed(failed)
}

// replayHistory sends the room's recent messages to a client that just
// arrived, oldest first. Delivery stops at the first failed send; the regular
// cleanup path will collect the client.
func (h *Hub) replayHistory(client *Client, room string) {
	h.mu.RLock()
	payloads := h.rooms.history(room)
	h.mu.RUnlock()

	for _, payload := range payloads {
		if !h.safeSend(client, payload) {
			return
		}
	}
}

// StatsSnapshot is the aggregate projection served by the /stats endpoint.
type StatsSnapshot struct {
	TotalConnections int            `json:"total_connections"`
	Rooms            map[string]int `json:"rooms"`
	ActiveRooms      int            `json:"active_rooms"`
}

// Stats computes the current aggregate by scanning the connection registry.
func (h *Hub) Stats() StatsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := h.registry.roomCounts()
	return StatsSnapshot{
		TotalConnections: h.registry.size(),
		Rooms:            rooms,
		ActiveRooms:      len(rooms),
	}
}

// shutdownClients closes all active client connections. Each client is
// removed from the liveness map and its send channel closed, so the write
// pump exits without waiting for its next ping tick; closing the connection
// unblocks the read pump.
func (h *Hub) shutdownClients() {
	slog.Info("shutting down all client connections")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		client.closed = true
		client.state = stateClosed
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "client", client.id, "error", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
