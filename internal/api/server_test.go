package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/db"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/text"
)

type fakeSessions struct {
	current    *client.Client
	reconnects atomic.Int32
}

func (f *fakeSessions) Current() *client.Client { return f.current }
func (f *fakeSessions) Reconnect()              { f.reconnects.Add(1) }

func newTestServer(t *testing.T, token string, history *db.HistoryStore) (*Server, *fakeSessions, *events.EventBus) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Application.API.Token = token
	cfg.Application.API.RateLimitRPS = 0

	bus := events.NewEventBus()
	sessions := &fakeSessions{}
	return NewServer(cfg, bus, sessions, history), sessions, bus
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPingAndStatusWithoutSession(t *testing.T) {
	s, _, _ := newTestServer(t, "", nil)

	w := do(t, s.Handler(), http.MethodGet, "/api/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(t, s.Handler(), http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, "unauthenticated", resp.AuthState)
	assert.NotEmpty(t, resp.Host.Architecture)
}

func TestPlayersNeedsConnection(t *testing.T) {
	s, sessions, _ := newTestServer(t, "", nil)

	w := do(t, s.Handler(), http.MethodGet, "/api/players", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	sessions.current = client.New(config.DefaultClientConfig(), nil)
	w = do(t, s.Handler(), http.MethodGet, "/api/players", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusAndPlayersWithLiveSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s, sessions, bus := newTestServer(t, "", nil)
	listed := make(chan struct{}, 1)
	bus.Subscribe(events.EventPlayerListUpdated, "test", func(ctx context.Context, e events.Event) error {
		listed <- struct{}{}
		return nil
	})

	cl := client.New(config.DefaultClientConfig(), bus)
	defer cl.Close()
	require.NoError(t, cl.Connect(context.Background(), "127.0.0.1", ln.Addr().(*net.TCPAddr).Port))
	sessions.current = cl

	var conn net.Conn
	select {
	case conn = <-accepted:
		defer conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
	}

	require.NoError(t, protocol.WriteFrame(conn, protocol.BuildPlayerList([]protocol.Player{{ID: 1, Name: "Alice"}})))
	select {
	case <-listed:
	case <-time.After(2 * time.Second):
		t.Fatal("player list not received")
	}

	w := do(t, s.Handler(), http.MethodGet, "/api/players", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Alice"`)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = do(t, s.Handler(), http.MethodGet, "/api/status", nil, nil)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp.State)
	assert.Equal(t, cl.SessionID(), resp.SessionID)
	assert.Equal(t, 1, resp.Players)
}

func TestControlRoutesRequireToken(t *testing.T) {
	s, sessions, _ := newTestServer(t, "s3cret", nil)

	w := do(t, s.Handler(), http.MethodPost, "/api/reconnect", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s.Handler(), http.MethodPost, "/api/reconnect", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, sessions.reconnects.Load())

	w = do(t, s.Handler(), http.MethodPost, "/api/reconnect", nil, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int32(1), sessions.reconnects.Load())
}

func TestSendChatValidation(t *testing.T) {
	s, _, _ := newTestServer(t, "", nil)

	w := do(t, s.Handler(), http.MethodPost, "/api/chat", []byte(`{}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s.Handler(), http.MethodPost, "/api/chat", []byte(`{"message":"hi"}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHistoryRoutes(t *testing.T) {
	s, _, _ := newTestServer(t, "", nil)
	w := do(t, s.Handler(), http.MethodGet, "/api/history/chat", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	hs, err := db.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hs.Close()
	require.NoError(t, hs.RecordChat(context.Background(), "s1", text.New("hello park"), time.Now()))

	s, _, _ = newTestServer(t, "", hs)
	w = do(t, s.Handler(), http.MethodGet, "/api/history/chat?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello park")

	w = do(t, s.Handler(), http.MethodGet, "/api/history/players", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s.Handler(), http.MethodGet, "/api/history/sessions", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, "", nil)
	w := do(t, s.Handler(), http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestEventStream(t *testing.T) {
	s, _, bus := newTestServer(t, "", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Stop()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the subscription to be registered.
	require.Eventually(t, func() bool {
		return bus.HandlerCount(events.EventPlayerJoined) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventPlayerJoined,
		Payload: events.PlayerPayload{SessionID: "s1", Player: protocol.Player{ID: 9, Name: "Zed"}},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string               `json:"type"`
		Payload events.PlayerPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "player_joined", msg.Type)
	assert.Equal(t, "Zed", msg.Payload.Player.Name)

	conn.Close()
	assert.Eventually(t, func() bool {
		return bus.HandlerCount(events.EventPlayerJoined) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriteClientError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[error]int{
		client.ErrTimeout:                                       http.StatusGatewayTimeout,
		client.ErrRequestPending:                                http.StatusConflict,
		client.ErrDisconnected:                                  http.StatusServiceUnavailable,
		protocol.CheckNullString("message", "a\x00b"):           http.StatusBadRequest,
		&client.TransportError{Op: "write", Err: net.ErrClosed}: http.StatusBadGateway,
	}
	for err, want := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeClientError(c, err)
		assert.Equal(t, want, w.Code, err.Error())
	}
}
