// Package server tracks which connection belongs to which room through the
// registry, the bidirectional client <-> (room, username) mapping.
package server

// sentinelUsername identifies a connection that disconnected before its join
// request was ever processed. The cleanup path must not fail for such clients.
const sentinelUsername = "Someone"

// connectionRecord ties a client to its current room and display name.
type connectionRecord struct {
	room     string
	username string
}

// registry maps every joined client to its record. It is not safe for
// concurrent use on its own; the hub serializes all access under its lock.
type registry struct {
	records map[*Client]connectionRecord
}

func newRegistry() *registry {
	return &registry{records: make(map[*Client]connectionRecord)}
}

// register inserts or overwrites the record for client. Last write wins, so
// calling it twice for the same connection is harmless.
func (r *registry) register(client *Client, username, room string) {
	r.records[client] = connectionRecord{room: room, username: username}
}

// unregister removes the record and returns the last-known identity for use
// in departure notifications. Unknown clients yield the sentinel username and
// an empty room rather than an error.
func (r *registry) unregister(client *Client) (username, room string) {
	record, ok := r.records[client]
	if !ok {
		return sentinelUsername, ""
	}
	delete(r.records, client)
	return record.username, record.room
}

// lookup returns the record for client, if any.
func (r *registry) lookup(client *Client) (connectionRecord, bool) {
	record, ok := r.records[client]
	return record, ok
}

// connectionsInRoom returns a snapshot of the clients currently mapped to
// room. The caller iterates the snapshot, never the live map, so concurrent
// register/unregister cannot corrupt a broadcast sweep.
func (r *registry) connectionsInRoom(room string) []*Client {
	clients := make([]*Client, 0, len(r.records))
	for client, record := range r.records {
		if record.room == room {
			clients = append(clients, client)
		}
	}
	return clients
}

// moveRoom updates the room for an existing record, reporting whether the
// client was registered at all.
func (r *registry) moveRoom(client *Client, newRoom string) bool {
	record, ok := r.records[client]
	if !ok {
		return false
	}
	record.room = newRoom
	r.records[client] = record
	return true
}

// size reports the number of registered connections.
func (r *registry) size() int {
	return len(r.records)
}

// roomCounts maps each room with at least one connection to its connection
// count. Used by the /stats projection.
func (r *registry) roomCounts() map[string]int {
	counts := make(map[string]int)
	for _, record := range r.records {
		counts[record.room]++
	}
	return counts
}
