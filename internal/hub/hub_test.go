package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomcast-live/roomcast/internal/config"
)

type recordingHandler struct {
	mu          sync.Mutex
	messages    []string
	disconnects []string
}

func (h *recordingHandler) HandleMessage(clientID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, clientID+":"+string(data))
}

func (h *recordingHandler) HandleDisconnect(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, clientID)
}

func (h *recordingHandler) snapshot() ([]string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...), append([]string(nil), h.disconnects...)
}

func testConfig() config.WebSocketConfig {
	cfg := config.Default().WebSocket
	cfg.PingPeriod = 50 * time.Millisecond
	cfg.PongWait = 200 * time.Millisecond
	return cfg
}

// startHub brings up a hub behind a real websocket endpoint.
func startHub(t *testing.T, handler Handler) (*Hub, string) {
	t.Helper()

	h := New(testConfig(), handler)
	go h.Run()
	t.Cleanup(h.Close)

	upgrader := websocket.Upgrader{}
	var next int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		mu.Lock()
		id := []string{"client-a", "client-b", "client-c"}[next%3]
		next++
		mu.Unlock()
		h.RegisterClient(conn, id)
	}))
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInboundMessagesReachHandler(t *testing.T) {
	handler := &recordingHandler{}
	_, url := startHub(t, handler)

	conn := dial(t, url)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool {
		msgs, _ := handler.snapshot()
		return len(msgs) == 1
	})
	msgs, _ := handler.snapshot()
	if msgs[0] != "client-a:hello" {
		t.Fatalf("handler saw %q", msgs[0])
	}
}

func TestSendToDeliversToOneClient(t *testing.T) {
	handler := &recordingHandler{}
	h, url := startHub(t, handler)

	connA := dial(t, url)
	connB := dial(t, url)
	waitFor(t, func() bool { return h.Connected("client-a") && h.Connected("client-b") })

	h.SendTo("client-b", []byte("for-b"))

	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := connB.ReadMessage()
	if err != nil {
		t.Fatalf("client-b read: %v", err)
	}
	if string(data) != "for-b" {
		t.Fatalf("client-b received %q", data)
	}

	// client-a sees nothing but pings, which ReadMessage skips
	connA.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := connA.ReadMessage(); err == nil {
		t.Fatalf("client-a unexpectedly received %q", data)
	}
}

func TestSendToUnknownClientIsDropped(t *testing.T) {
	handler := &recordingHandler{}
	h, _ := startHub(t, handler)

	// must not block or panic
	h.SendTo("nobody", []byte("lost"))
}

func TestDisconnectReportedOnce(t *testing.T) {
	handler := &recordingHandler{}
	h, url := startHub(t, handler)

	conn := dial(t, url)
	waitFor(t, func() bool { return h.Connected("client-a") })

	conn.Close()
	waitFor(t, func() bool {
		_, disc := handler.snapshot()
		return len(disc) > 0
	})

	time.Sleep(50 * time.Millisecond)
	_, disc := handler.snapshot()
	if len(disc) != 1 || disc[0] != "client-a" {
		t.Fatalf("disconnects = %v, want exactly one for client-a", disc)
	}
	if h.Connected("client-a") {
		t.Fatal("client still registered after disconnect")
	}
}

func TestRegisterDuringShutdownReturnsNil(t *testing.T) {
	handler := &recordingHandler{}
	h, url := startHub(t, handler)

	h.Close()

	// an upgrade racing Close must not block forever
	done := make(chan *Client, 1)
	go func() {
		extra, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			done <- nil
			return
		}
		done <- h.RegisterClient(extra, "late-client")
	}()

	select {
	case client := <-done:
		if client != nil {
			t.Fatal("registration succeeded on a closed hub")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RegisterClient blocked on a closed hub")
	}
}

func TestClientIDsSnapshot(t *testing.T) {
	handler := &recordingHandler{}
	h, url := startHub(t, handler)

	dial(t, url)
	dial(t, url)
	waitFor(t, func() bool { return len(h.ClientIDs()) == 2 })

	ids := map[string]bool{}
	for _, id := range h.ClientIDs() {
		ids[id] = true
	}
	if !ids["client-a"] || !ids["client-b"] {
		t.Fatalf("ids = %v", h.ClientIDs())
	}
}
