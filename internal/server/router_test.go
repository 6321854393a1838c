package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRegistersAndAnnounces(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)

	joinAs(h, c, "alice", "lobby")

	assert.Equal(t, stateJoined, c.state)
	record, ok := h.registry.lookup(c)
	require.True(t, ok)
	assert.Equal(t, "alice", record.username)
	assert.Equal(t, "lobby", record.room)
	assert.Equal(t, []string{"alice"}, h.rooms.userList("lobby"))

	// The joiner sees its own join banner, then the room stats.
	banner := recvEvent(t, c)
	assert.Equal(t, eventTypeSystem, banner["type"])
	assert.Equal(t, "alice joined the chat", banner["message"])
	assert.NotEmpty(t, banner["timestamp"])

	stats := recvEvent(t, c)
	assert.Equal(t, eventTypeStats, stats["type"])
	assert.Equal(t, float64(1), stats["online"])

	userList := recvEvent(t, c)
	assert.Equal(t, eventTypeUserList, userList["type"])
	assert.Equal(t, []any{"alice"}, userList["users"])
}

func TestJoinDefaultsBlankIdentity(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)

	h.route(c, InboundMessage{Username: "   ", Room: ""})

	record, ok := h.registry.lookup(c)
	require.True(t, ok)
	assert.Equal(t, defaultUsername, record.username)
	assert.Equal(t, defaultRoom, record.room)
}

func TestTypedFrameFromUnjoinedClientIsRejected(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)

	h.route(c, InboundMessage{Type: messageTypeChat, Message: "hello"})

	assert.Equal(t, stateUnjoined, c.state)
	assert.Equal(t, 0, h.registry.size())
	expectNoEvent(t, c)
}

func TestChatTrimsAndExcludesSender(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	drainEvents(a)
	drainEvents(b)

	h.route(a, InboundMessage{Type: messageTypeChat, Message: "  hi  "})

	event := recvEvent(t, b)
	assert.Equal(t, eventTypeChat, event["type"])
	assert.Equal(t, "alice", event["username"])
	assert.Equal(t, "hi", event["message"])
	expectNoEvent(t, a)
}

func TestEmptyChatIsDroppedSilently(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	drainEvents(a)
	drainEvents(b)

	h.route(a, InboundMessage{Type: messageTypeChat, Message: "   "})

	expectNoEvent(t, a)
	expectNoEvent(t, b)
}

func TestTypingListsExcludeEachRecipient(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	drainEvents(a)
	drainEvents(b)

	h.route(a, InboundMessage{Type: messageTypeTyping})

	fromA := recvEvent(t, a)
	assert.Equal(t, eventTypeTyping, fromA["type"])
	assert.Equal(t, []any{}, fromA["users"], "a client never sees itself typing")

	fromB := recvEvent(t, b)
	assert.Equal(t, eventTypeTyping, fromB["type"])
	assert.Equal(t, []any{"alice"}, fromB["users"])
}

func TestStopTypingClearsIndicator(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")

	h.route(a, InboundMessage{Type: messageTypeTyping})
	drainEvents(a)
	drainEvents(b)

	h.route(a, InboundMessage{Type: messageTypeStopTyping})

	event := recvEvent(t, b)
	assert.Equal(t, eventTypeTyping, event["type"])
	assert.Equal(t, []any{}, event["users"])
}

func TestSwitchRoomMovesUserBetweenRooms(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	h.route(a, InboundMessage{Type: messageTypeTyping})
	drainEvents(a)
	drainEvents(b)

	h.route(a, InboundMessage{Type: messageTypeSwitchRoom, NewRoom: "den"})

	record, ok := h.registry.lookup(a)
	require.True(t, ok)
	assert.Equal(t, "den", record.room)
	assert.Equal(t, []string{"bob"}, h.rooms.userList("lobby"))
	assert.Equal(t, []string{"alice"}, h.rooms.userList("den"))
	assert.Empty(t, h.rooms.typingDisplayList("lobby", "bob"))

	// The old room sees the departure and refreshed presence.
	departure := recvEventOfType(t, b, eventTypeSystem)
	assert.Equal(t, "alice left the chat", departure["message"])
	oldStats := recvEventOfType(t, b, eventTypeStats)
	assert.Equal(t, float64(1), oldStats["online"])
	oldList := recvEventOfType(t, b, eventTypeUserList)
	assert.Equal(t, []any{"bob"}, oldList["users"])

	// The mover sees the new room's join banner and presence.
	arrival := recvEventOfType(t, a, eventTypeSystem)
	assert.Equal(t, "alice joined the chat", arrival["message"])
	newList := recvEventOfType(t, a, eventTypeUserList)
	assert.Equal(t, []any{"alice"}, newList["users"])
}

func TestSwitchRoomToSameRoomIsNoop(t *testing.T) {
	h := NewHub()
	c := newTestClient(h)
	joinAs(h, c, "alice", "lobby")
	drainEvents(c)

	h.route(c, InboundMessage{Type: messageTypeSwitchRoom, NewRoom: "lobby"})
	h.route(c, InboundMessage{Type: messageTypeSwitchRoom, NewRoom: "  "})

	expectNoEvent(t, c)
	assert.Equal(t, []string{"alice"}, h.rooms.userList("lobby"))
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	drainEvents(a)
	drainEvents(b)

	h.disconnect(b)

	departure := recvEventOfType(t, a, eventTypeSystem)
	assert.Equal(t, "bob left the chat", departure["message"])
	stats := recvEventOfType(t, a, eventTypeStats)
	assert.Equal(t, float64(1), stats["online"])
	userList := recvEventOfType(t, a, eventTypeUserList)
	assert.Equal(t, []any{"alice"}, userList["users"])
}

func TestErroredDisconnectChangesWording(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	joinAs(h, b, "bob", "lobby")
	drainEvents(a)
	drainEvents(b)

	b.errored.Store(true)
	h.disconnect(b)

	departure := recvEventOfType(t, a, eventTypeSystem)
	assert.Equal(t, "bob left the chat (connection error)", departure["message"])
}

func TestHistoryReplayedToNewcomer(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	h.route(a, InboundMessage{Type: messageTypeChat, Message: "first"})
	h.route(a, InboundMessage{Type: messageTypeChat, Message: "second"})
	drainEvents(a)

	b := newTestClient(h)
	joinAs(h, b, "bob", "lobby")

	// History arrives before the newcomer's own join banner: alice's join
	// banner, then both chat messages.
	replayedBanner := recvEvent(t, b)
	assert.Equal(t, "alice joined the chat", replayedBanner["message"])
	first := recvEvent(t, b)
	assert.Equal(t, "first", first["message"])
	second := recvEvent(t, b)
	assert.Equal(t, "second", second["message"])
	ownBanner := recvEvent(t, b)
	assert.Equal(t, "bob joined the chat", ownBanner["message"])
}

func TestHistoryHonorsConfiguredLimit(t *testing.T) {
	cfg := NewConfig()
	cfg.HistoryLimit = 3
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	h := NewHub()
	a := newTestClient(h)
	joinAs(h, a, "alice", "lobby")
	for i := 1; i <= 5; i++ {
		h.route(a, InboundMessage{Type: messageTypeChat, Message: fmt.Sprintf("msg-%d", i)})
	}
	drainEvents(a)

	b := newTestClient(h)
	joinAs(h, b, "bob", "lobby")

	replayed := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		event := recvEvent(t, b)
		message, _ := event["message"].(string)
		replayed = append(replayed, message)
	}
	assert.Equal(t, []string{"msg-3", "msg-4", "msg-5"}, replayed)
}
