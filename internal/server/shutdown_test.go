package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHubHandler upgrades incoming requests onto the given hub instead of the
// process-wide one, so shutdown tests get a hub they can tear down freely.
func newHubHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, h, r.RemoteAddr)
		h.register <- client
	}
}

// startPrivateHub runs a fresh hub behind its own test server and returns a
// dialer-ready URL.
func startPrivateHub(t *testing.T) (*Hub, string) {
	t.Helper()

	h := NewHub()
	go h.Run()

	testServer := httptest.NewServer(newHubHandler(h))
	t.Cleanup(testServer.Close)

	cfg := NewConfig()
	cfg.AllowedOrigins = append([]string{testServer.URL}, cfg.AllowedOrigins...)
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	return h, "ws" + strings.TrimPrefix(testServer.URL, "http")
}

func dialPrivateHub(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	headers := http.Header{}
	headers.Set("Origin", "http"+strings.TrimPrefix(wsURL, "ws"))

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestShutdownWithNoClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	assert.NoError(t, h.Shutdown(time.Second))
}

func TestGracefulShutdownClosesClients(t *testing.T) {
	h, wsURL := startPrivateHub(t)

	conn := dialPrivateHub(t, wsURL)
	require.NoError(t, conn.WriteJSON(map[string]string{"username": "alice", "room": "shutdown"}))

	// Wait for the join banner so the hub has fully admitted the client.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, h.Shutdown(2*time.Second))

	// The server side is gone; the next read must fail.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestShutdownReleasesIdleClients(t *testing.T) {
	h, wsURL := startPrivateHub(t)

	// Idle clients: read pumps blocked on the socket, write pumps parked
	// between pings. Shutdown must still finish well before its deadline.
	for i := 0; i < 3; i++ {
		dialPrivateHub(t, wsURL)
	}
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, h.Shutdown(5*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConcurrentShutdown(t *testing.T) {
	h, wsURL := startPrivateHub(t)
	dialPrivateHub(t, wsURL)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Shutdown(2 * time.Second)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestInboundRejectedAfterShutdown(t *testing.T) {
	h := NewHub()
	go h.Run()
	require.NoError(t, h.Shutdown(time.Second))

	c := NewClient(nil, h, "test:0")

	// The hub loop has exited; processMessage must bail out instead of
	// blocking forever on the inbound channel.
	done := make(chan bool, 1)
	go func() {
		done <- c.processMessage([]byte(`{"type":"chat","message":"late"}`))
	}()

	select {
	case delivered := <-done:
		assert.False(t, delivered)
	case <-time.After(time.Second):
		t.Fatal("processMessage blocked after shutdown")
	}
}
