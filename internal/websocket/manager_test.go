package websocket

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestManager(maxClients int) *Manager {
	return NewManager(maxClients, time.Second, 5*time.Second, 4*time.Second, testLogger())
}

// startObserverServer serves connections straight into the manager, the
// way the daemon's WebSocket handler does.
func startObserverServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.Attach(r.URL.Query().Get("id"), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, id string) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + id
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", m.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesObservers(t *testing.T) {
	m := newTestManager(5)
	srv := startObserverServer(t, m)

	conn := dial(t, srv, "obs-1")
	waitForClients(t, m, 1)

	m.Publish(TypeSyncCompleted, map[string]int{"pulled": 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if msg.Type != TypeSyncCompleted {
		t.Errorf("event type = %q, want %q", msg.Type, TypeSyncCompleted)
	}
	if msg.Timestamp.IsZero() {
		t.Error("event has no timestamp")
	}

	var payload map[string]int
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["pulled"] != 3 {
		t.Errorf("payload = %v", payload)
	}
}

func TestMaxClients(t *testing.T) {
	m := newTestManager(1)
	srv := startObserverServer(t, m)

	dial(t, srv, "obs-1")
	waitForClients(t, m, 1)

	// The second observer is rejected and its connection closed.
	second := dial(t, srv, "obs-2")
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Error("rejected observer read succeeded")
	}
	if m.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", m.ClientCount())
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	m := newTestManager(5)
	srv := startObserverServer(t, m)

	conn := dial(t, srv, "obs-1")
	waitForClients(t, m, 1)

	conn.Close()
	waitForClients(t, m, 0)
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeSyncStarted, map[string]string{"run_id": "r1"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	if msg.Type != TypeSyncStarted {
		t.Errorf("Type = %q", msg.Type)
	}
	if !strings.Contains(string(msg.Payload), "r1") {
		t.Errorf("Payload = %s", msg.Payload)
	}
}
