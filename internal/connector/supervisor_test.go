package connector

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
)

const waitFor = 3 * time.Second

func listen(t *testing.T) (net.Listener, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln, conns
}

// answerAuth reads the client's auth request and replies with status.
func answerAuth(t *testing.T, conns chan net.Conn, status protocol.AuthStatus) net.Conn {
	t.Helper()

	var conn net.Conn
	select {
	case conn = <-conns:
		t.Cleanup(func() { conn.Close() })
	case <-time.After(waitFor):
		t.Fatal("supervisor did not connect")
	}

	conn.SetReadDeadline(time.Now().Add(waitFor))
	payload, err := protocol.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	require.Equal(t, protocol.KindAuth, protocol.Kind(protocol.Uint32LE(payload)))

	require.NoError(t, protocol.WriteFrame(conn, protocol.BuildAuthResponse(status, 7)))
	return conn
}

func newTestSupervisor(t *testing.T, ln net.Listener) (*Supervisor, *events.EventBus) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Server.Username = "ranger"
	cfg.Server.ReconnectDelaySec = 1
	cfg.Client.RequestTimeoutMS = 1000
	cfg.Client.PollIntervalMS = 20

	bus := events.NewEventBus()
	return NewSupervisor(cfg, bus), bus
}

func runSupervisor(t *testing.T, s *Supervisor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("supervisor did not stop")
		}
	})
	return cancel
}

func authenticated(s *Supervisor) func() bool {
	return func() bool {
		c := s.Current()
		return c != nil && c.AuthState() == client.Authenticated
	}
}

func TestSupervisorJoinsAndReconnects(t *testing.T) {
	ln, conns := listen(t)
	s, _ := newTestSupervisor(t, ln)
	runSupervisor(t, s)

	answerAuth(t, conns, protocol.AuthOK)
	require.Eventually(t, authenticated(s), waitFor, 10*time.Millisecond)
	first := s.Current()
	assert.Equal(t, uint8(7), first.PlayerID())

	s.Reconnect()
	answerAuth(t, conns, protocol.AuthOK)
	require.Eventually(t, func() bool {
		return s.Current() != first && authenticated(s)()
	}, waitFor, 10*time.Millisecond)

	assert.False(t, first.Connected())
	assert.NotEqual(t, first.SessionID(), s.Current().SessionID())
}

func TestSupervisorRetriesAfterRejection(t *testing.T) {
	ln, conns := listen(t)
	s, bus := newTestSupervisor(t, ln)
	runSupervisor(t, s)

	answerAuth(t, conns, protocol.AuthBadPassword)

	// A reconnect request cuts the retry delay short.
	require.Eventually(t, func() bool {
		c := s.Current()
		return c != nil && !c.Connected()
	}, waitFor, 10*time.Millisecond)
	bus.Emit(context.Background(), events.Event{Type: events.EventReconnect, Source: "test"})

	answerAuth(t, conns, protocol.AuthOK)
	require.Eventually(t, authenticated(s), waitFor, 10*time.Millisecond)
}

func TestSupervisorFollowsServerDisconnect(t *testing.T) {
	ln, conns := listen(t)
	s, _ := newTestSupervisor(t, ln)
	runSupervisor(t, s)

	conn := answerAuth(t, conns, protocol.AuthOK)
	require.Eventually(t, authenticated(s), waitFor, 10*time.Millisecond)
	first := s.Current()

	require.NoError(t, protocol.WriteFrame(conn, protocol.BuildDisconnectMessage("restarting")))
	select {
	case <-first.SessionDone():
	case <-time.After(waitFor):
		t.Fatal("session did not end")
	}
	assert.Equal(t, "restarting", first.DisconnectReason())

	// Auto reconnect after the minimum delay.
	answerAuth(t, conns, protocol.AuthOK)
	require.Eventually(t, func() bool {
		return s.Current() != first && authenticated(s)()
	}, waitFor, 10*time.Millisecond)
}
