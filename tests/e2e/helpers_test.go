//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"train-console/internal/booking"
	"train-console/internal/domain"
	"train-console/internal/handler"
	"train-console/internal/messaging"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// call sends a JSON request to the console and decodes the answer into
// out when set. It returns the status code.
func (s *stack) call(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), "body: %s", string(data))
	}
	return resp.StatusCode
}

func (s *stack) login(t *testing.T, username, password string, admin bool) handler.MeResponse {
	t.Helper()

	var me handler.MeResponse
	status := s.call(t, http.MethodPost, "/api/v1/auth/login",
		handler.LoginRequest{Username: username, Password: password, AsAdmin: admin}, &me)
	require.Equal(t, http.StatusOK, status, "login %s", username)
	return me
}

func (s *stack) me(t *testing.T) handler.MeResponse {
	t.Helper()

	var me handler.MeResponse
	require.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/api/v1/auth/me", nil, &me))
	return me
}

func (s *stack) openDialog(t *testing.T, trainID string) booking.Snapshot {
	t.Helper()

	var snap booking.Snapshot
	status := s.call(t, http.MethodPost, "/api/v1/dialogs", handler.OpenDialogRequest{TrainID: trainID}, &snap)
	require.Equal(t, http.StatusCreated, status)
	return snap
}

func (s *stack) toggle(t *testing.T, dialogID string, seats ...int) booking.Snapshot {
	t.Helper()

	var resp handler.ToggleResponse
	for _, seat := range seats {
		path := fmt.Sprintf("/api/v1/dialogs/%s/seats/%d/toggle", dialogID, seat)
		require.Equal(t, http.StatusOK, s.call(t, http.MethodPost, path, nil, &resp))
	}
	return resp.Snapshot
}

// dialWatcher subscribes to a dialog's event stream
func (s *stack) dialWatcher(t *testing.T, dialogID string) *watcher {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/dialogs/" + dialogID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &watcher{t: t, conn: conn}
}

type watcher struct {
	t    *testing.T
	conn *websocket.Conn
}

// next waits for the next dialog event
func (w *watcher) next() booking.Event {
	w.t.Helper()

	require.NoError(w.t, w.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event booking.Event
	require.NoError(w.t, w.conn.ReadJSON(&event))
	return event
}

// until reads events until match accepts one
func (w *watcher) until(match func(booking.Event) bool) booking.Event {
	w.t.Helper()

	for {
		event := w.next()
		if match(event) {
			return event
		}
	}
}

// eventSink collects booking events from a private queue bound to the
// bookings exchange
type eventSink struct {
	mu     sync.Mutex
	events []domain.BookingConfirmed
}

func newEventSink(t *testing.T) *eventSink {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sink := &eventSink{}
	consumer := messaging.NewBookingConsumer(rmq, "", func(_ context.Context, event *domain.BookingConfirmed) error {
		sink.mu.Lock()
		sink.events = append(sink.events, *event)
		sink.mu.Unlock()
		return nil
	})
	_, err := consumer.Start(ctx)
	require.NoError(t, err)
	return sink
}

// find returns the event for bookingID once it has arrived
func (s *eventSink) find(t *testing.T, bookingID string) domain.BookingConfirmed {
	t.Helper()

	var found domain.BookingConfirmed
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range s.events {
			if e.BookingID == bookingID {
				found = e
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond, "booking %s was not announced", bookingID)
	return found
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
