package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"train-console/internal/booking"
	"train-console/internal/catalog"
	"train-console/internal/middleware"
	"train-console/internal/session"
	"train-console/internal/testutil"
	ws "train-console/internal/websocket"
)

const (
	testUser     = "traveller"
	testPassword = "secret123"
	testAdmin    = "stationmaster"
	testTrain    = "12951"
)

// console is a running console server wired to a fake backend
type console struct {
	backend  *testutil.FakeBackend
	store    *session.Store
	registry *booking.Registry
	hub      *ws.Hub
	server   *httptest.Server
}

func newConsole(t *testing.T, opts ...session.Option) *console {
	t.Helper()

	backend := testutil.NewFakeBackend(t)
	backend.AddUser(testUser, testPassword, false)
	backend.AddUser(testAdmin, testPassword, true)
	backend.AddTrain(testTrain, "Rajdhani Express", "DELHI", "MUMBAI", 12)
	backend.SetPricePerSeat(30)

	client := testutil.NewClient(backend.URL(), nil)
	store := session.NewStore(client, session.NewMemoryStorage(), opts...)
	client.UseSession(store, store)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = hub.Run(ctx)
	}()
	t.Cleanup(cancel)

	registry := booking.NewRegistry(client, booking.WithEventSink(hub))
	store.OnTeardown(func(string) {
		registry.CloseAll()
	})

	router := NewRouter(RouterConfig{
		Store:          store,
		Catalog:        catalog.New(client),
		Registry:       registry,
		Hub:            hub,
		AllowedOrigins: []string{"*"},
		Ready:          Ready(ReadyDeps{BackendURL: backend.URL()}),
		Validation:     middleware.DefaultOpenAPIValidatorConfig(false),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &console{
		backend:  backend,
		store:    store,
		registry: registry,
		hub:      hub,
		server:   server,
	}
}

// do sends a JSON request and decodes the JSON answer into out when set
func (c *console) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

func (c *console) login(t *testing.T, username string, admin bool) MeResponse {
	t.Helper()

	var me MeResponse
	status := c.do(t, http.MethodPost, "/api/v1/auth/login",
		LoginRequest{Username: username, Password: testPassword, AsAdmin: admin}, &me)
	require.Equal(t, http.StatusOK, status)
	return me
}

func (c *console) openDialog(t *testing.T) booking.Snapshot {
	t.Helper()

	var snap booking.Snapshot
	status := c.do(t, http.MethodPost, "/api/v1/dialogs", OpenDialogRequest{TrainID: testTrain}, &snap)
	require.Equal(t, http.StatusCreated, status)
	return snap
}
