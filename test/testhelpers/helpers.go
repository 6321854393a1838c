// Package testhelpers provides common utilities for exercising the Chatterbox
// relay over real WebSocket connections in integration tests.
//
// The relay's write pump may coalesce several queued events into one frame,
// newline-separated, so reading is done through EventReader, which splits
// frames back into individual events and buffers the surplus.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DialChat opens a WebSocket connection to url with the given Origin header.
func DialChat(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Join sends the initial join request for the connection.
func Join(conn *websocket.Conn, username, room string) error {
	return conn.WriteJSON(map[string]string{"username": username, "room": room})
}

// SendChat sends one chat message.
func SendChat(conn *websocket.Conn, message string) error {
	return conn.WriteJSON(map[string]string{"type": "chat", "message": message})
}

// SendTyping marks the sender as typing or not typing.
func SendTyping(conn *websocket.Conn, typing bool) error {
	msgType := "typing"
	if !typing {
		msgType = "stop_typing"
	}
	return conn.WriteJSON(map[string]string{"type": msgType})
}

// SwitchRoom moves the sender to another room.
func SwitchRoom(conn *websocket.Conn, newRoom string) error {
	return conn.WriteJSON(map[string]string{"type": "switch_room", "new_room": newRoom})
}

// CloseChat gracefully closes a WebSocket connection.
func CloseChat(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// EventReader yields decoded relay events one at a time. A dedicated
// goroutine owns all reads on the connection: a timed-out read would leave a
// gorilla connection permanently failed, so waiting happens on the event
// channel, never on the socket.
type EventReader struct {
	events chan map[string]any

	// readErr is written before events is closed and read only after the
	// close is observed, so no further synchronization is needed.
	readErr error
}

// NewEventReader wraps a connection for event-at-a-time reading. The reader
// goroutine exits when the connection errors or is closed.
func NewEventReader(conn *websocket.Conn) *EventReader {
	r := &EventReader{events: make(chan map[string]any, 256)}
	go r.readLoop(conn)
	return r
}

func (r *EventReader) readLoop(conn *websocket.Conn) {
	defer close(r.events)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.readErr = err
			return
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			var event map[string]any
			if err := json.Unmarshal(line, &event); err != nil {
				r.readErr = err
				return
			}
			r.events <- event
		}
	}
}

// Next returns the next event, waiting at most timeout for one to arrive.
// A timeout leaves the connection usable for later reads.
func (r *EventReader) Next(timeout time.Duration) (map[string]any, error) {
	select {
	case event, ok := <-r.events:
		if !ok {
			return nil, r.readErr
		}
		return event, nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for event")
	}
}

// WaitFor discards events until one of the wanted type arrives or the
// deadline passes.
func (r *EventReader) WaitFor(eventType string, timeout time.Duration) (map[string]any, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errors.New("timed out waiting for " + eventType + " event")
		}
		event, err := r.Next(remaining)
		if err != nil {
			return nil, err
		}
		if event["type"] == eventType {
			return event, nil
		}
	}
}

// ExpectNone asserts that no event of the given type arrives within the
// window. Events of other types are discarded.
func (r *EventReader) ExpectNone(eventType string, window time.Duration) error {
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		event, err := r.Next(remaining)
		if err != nil {
			// Read timeouts and closed connections both mean no event came.
			return nil
		}
		if event["type"] == eventType {
			return errors.New("unexpected " + eventType + " event")
		}
	}
}
