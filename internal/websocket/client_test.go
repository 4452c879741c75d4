package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/booking"
)

var testUpgrader = websocket.Upgrader{}

// serveDialog upgrades every request into a client watching dialogID
func serveDialog(t *testing.T, hub *Hub, dialogID string, initial []byte) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn, "user-1", dialogID)
		if initial != nil {
			client.Queue(initial)
		}
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		client.ReadPump()
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) booking.Event {
	t.Helper()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event booking.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestClient_StreamsInitialSnapshotThenEvents(t *testing.T) {
	hub, _ := startHub(t)

	initial, err := json.Marshal(booking.Event{
		Type:     booking.EventUpdated,
		Snapshot: booking.Snapshot{DialogID: "dialog-a", State: booking.StateIdle},
	})
	require.NoError(t, err)

	conn := dial(t, serveDialog(t, hub, "dialog-a", initial))

	first := readEvent(t, conn)
	assert.Equal(t, booking.StateIdle, first.Snapshot.State)

	// The write pump starts only after registration, so the watcher is in
	// place once the first frame has arrived
	hub.Publish("dialog-a", booking.Event{
		Type:     booking.EventUpdated,
		Snapshot: booking.Snapshot{DialogID: "dialog-a", State: booking.StateConfirmed},
	})

	second := readEvent(t, conn)
	assert.Equal(t, booking.StateConfirmed, second.Snapshot.State)
}

func TestClient_ClosedDialogClosesSocket(t *testing.T) {
	hub, _ := startHub(t)

	initial, err := json.Marshal(booking.Event{Type: booking.EventUpdated})
	require.NoError(t, err)
	conn := dial(t, serveDialog(t, hub, "dialog-a", initial))
	readEvent(t, conn)

	hub.Publish("dialog-a", booking.Event{
		Type:     booking.EventClosed,
		Snapshot: booking.Snapshot{DialogID: "dialog-a", Closed: true},
	})

	event := readEvent(t, conn)
	assert.Equal(t, booking.EventClosed, event.Type)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestClient_QueueReportsFullBuffer(t *testing.T) {
	client := &Client{send: make(chan []byte, 1)}

	assert.True(t, client.Queue([]byte("a")))
	assert.False(t, client.Queue([]byte("b")))
}

func TestClient_CloseConnection_Idempotent(t *testing.T) {
	hub, _ := startHub(t)

	closed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, "user-1", "dialog-a")
		client.closeConnection()
		client.closeConnection()
		assert.ErrorIs(t, client.writeMessage(websocket.TextMessage, []byte("late")), websocket.ErrCloseSent)
		close(closed)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish")
	}
}
