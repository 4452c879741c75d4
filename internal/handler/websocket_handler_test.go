package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/booking"
)

func (c *console) dial(t *testing.T, dialogID string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(c.server.URL, "http") + "/ws/dialogs/" + dialogID
	return websocket.DefaultDialer.Dial(url, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) booking.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event booking.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestWebSocketHandler_StreamsDialog(t *testing.T) {
	c := newConsole(t)
	c.login(t, testUser, false)
	snap := c.openDialog(t)

	conn, _, err := c.dial(t, snap.DialogID, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readEvent(t, conn)
	assert.Equal(t, booking.EventUpdated, initial.Type)
	assert.Equal(t, snap.DialogID, initial.Snapshot.DialogID)
	assert.Empty(t, initial.Snapshot.Selection)

	require.Equal(t, http.StatusOK, c.do(t, http.MethodPost, dialogPath(snap.DialogID, "seats", "6", "toggle"), nil, nil))

	updated := readEvent(t, conn)
	assert.Equal(t, booking.EventUpdated, updated.Type)
	assert.Equal(t, []int{6}, updated.Snapshot.Selection)

	require.Equal(t, http.StatusNoContent, c.do(t, http.MethodDelete, dialogPath(snap.DialogID), nil, nil))

	closed := readEvent(t, conn)
	assert.Equal(t, booking.EventClosed, closed.Type)
	assert.True(t, closed.Snapshot.Closed)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestWebSocketHandler_Rejections(t *testing.T) {
	c := newConsole(t)

	_, resp, err := c.dial(t, "anything", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c.login(t, testUser, false)

	_, resp, err = c.dial(t, "no-such-dialog", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, []string{"http://localhost:5173"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, "/ws/dialogs/x", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, handler.upgrader.CheckOrigin(req), tt.origin)
	}
}
