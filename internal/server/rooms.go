// Package server keeps the per-room ephemeral state: present users, typing
// indicators, and the bounded recent-message buffer.
package server

import (
	"sort"

	"github.com/samber/lo"
)

// defaultHistoryLimit bounds the per-room recent-message buffer when no limit
// is configured.
const defaultHistoryLimit = 50

// roomState holds one room's ephemeral data. Display names are
// reference-counted because two connections may share a name; the name leaves
// the presence set only when its last connection does.
type roomState struct {
	users   map[string]int
	typing  map[string]struct{}
	history [][]byte
}

func newRoomState() *roomState {
	return &roomState{
		users:  make(map[string]int),
		typing: make(map[string]struct{}),
	}
}

// roomStore owns all room entries. Rooms are created lazily on first occupant
// and deleted when the last occupant leaves, so churn across many ephemeral
// rooms cannot grow the map without bound. Not safe for concurrent use on its
// own; the hub serializes all access under its lock.
type roomStore struct {
	rooms map[string]*roomState
}

func newRoomStore() *roomStore {
	return &roomStore{rooms: make(map[string]*roomState)}
}

func (s *roomStore) room(name string) *roomState {
	state, ok := s.rooms[name]
	if !ok {
		state = newRoomState()
		s.rooms[name] = state
	}
	return state
}

// addUser records one connection for username in room, creating the room on
// first occupant.
func (s *roomStore) addUser(room, username string) {
	s.room(room).users[username]++
}

// removeUser drops one connection reference for username in room. The name
// disappears from the presence and typing sets when its last connection
// leaves, and the room entry itself is deleted once empty.
func (s *roomStore) removeUser(room, username string) {
	state, ok := s.rooms[room]
	if !ok {
		return
	}
	if n, present := state.users[username]; present {
		if n <= 1 {
			delete(state.users, username)
			delete(state.typing, username)
		} else {
			state.users[username] = n - 1
		}
	}
	if len(state.users) == 0 {
		delete(s.rooms, room)
	}
}

// setTyping marks or clears username in room's typing set. Clearing in a room
// that does not exist is a no-op, not an error.
func (s *roomStore) setTyping(room, username string, isTyping bool) {
	if isTyping {
		s.room(room).typing[username] = struct{}{}
		return
	}
	state, ok := s.rooms[room]
	if !ok {
		return
	}
	delete(state.typing, username)
}

// typingDisplayList returns the names currently typing in room, minus the
// requester: a client never sees itself listed as typing.
func (s *roomStore) typingDisplayList(room, excluding string) []string {
	state, ok := s.rooms[room]
	if !ok {
		return []string{}
	}
	names := lo.Filter(lo.Keys(state.typing), func(name string, _ int) bool {
		return name != excluding
	})
	sort.Strings(names)
	return names
}

// appendHistory records payload in room's bounded FIFO buffer, evicting the
// oldest entries beyond limit. Rooms are not created here: history for a room
// nobody occupies would never be garbage-collected.
func (s *roomStore) appendHistory(room string, payload []byte, limit int) {
	state, ok := s.rooms[room]
	if !ok {
		return
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	state.history = append(state.history, payload)
	if len(state.history) > limit {
		state.history = state.history[len(state.history)-limit:]
	}
}

// history returns a copy of the recorded payloads for room, oldest first.
func (s *roomStore) history(room string) [][]byte {
	state, ok := s.rooms[room]
	if !ok {
		return nil
	}
	return append([][]byte(nil), state.history...)
}

// userCount reports the number of distinct display names present in room.
func (s *roomStore) userCount(room string) int {
	state, ok := s.rooms[room]
	if !ok {
		return 0
	}
	return len(state.users)
}

// userList returns the display names present in room in sorted order.
func (s *roomStore) userList(room string) []string {
	state, ok := s.rooms[room]
	if !ok {
		return []string{}
	}
	names := lo.Keys(state.users)
	sort.Strings(names)
	return names
}
