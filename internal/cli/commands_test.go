package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
	reconnects int
}

func (f *fakeSessions) Current() *client.Client { return f.current }
func (f *fakeSessions) Reconnect()              { f.reconnects++ }

func run(t *testing.T, c *CLI, input string) string {
	t.Helper()
	var out bytes.Buffer
	c.in = strings.NewReader(input)
	c.out = &out

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CLI did not stop at end of input")
	}
	return out.String()
}

func newTestCLI(t *testing.T, history *db.HistoryStore) (*CLI, *fakeSessions, *config.Config, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config.json"))
	bus := events.NewEventBus()
	sessions := &fakeSessions{}
	return NewCLI(cfg, bus, sessions, history, nil, nil), sessions, cfg, bus
}

func TestHelpAndUnknown(t *testing.T) {
	c, _, _, _ := newTestCLI(t, nil)
	out := run(t, c, "help\nfrobnicate\n")
	assert.Contains(t, out, "say <message>")
	assert.Contains(t, out, "Unknown command: 'frobnicate'")
}

func TestStatusWithoutSession(t *testing.T) {
	c, sessions, _, _ := newTestCLI(t, nil)
	out := run(t, c, "status\n")
	assert.Contains(t, out, "No session yet")

	sessions.current = client.New(config.DefaultClientConfig(), nil)
	out = run(t, c, "status\n")
	assert.Contains(t, out, "State:        idle")
	assert.Contains(t, out, "Remote:       -")
}

func TestCommandsNeedConnection(t *testing.T) {
	c, sessions, _, _ := newTestCLI(t, nil)
	sessions.current = client.New(config.DefaultClientConfig(), nil)

	out := run(t, c, "players\nsay hello\ninfo\nsay\n")
	assert.Equal(t, 3, strings.Count(out, "Error: not connected to a server"))
	assert.Contains(t, out, "usage: say <message>")
}

func TestReconnect(t *testing.T) {
	c, sessions, _, _ := newTestCLI(t, nil)
	out := run(t, c, "reconnect\n")
	assert.Equal(t, 1, sessions.reconnects)
	assert.Contains(t, out, "Reconnection initiated")
}

func TestSetConfig(t *testing.T) {
	c, _, cfg, _ := newTestCLI(t, nil)

	out := run(t, c, "setconfig port 12000\nsetconfig username Park Ranger\nsetconfig port abc\nsetconfig nope 1\n")
	assert.Equal(t, 12000, cfg.GetServer().Port)
	assert.Equal(t, "Park Ranger", cfg.GetServer().Username)
	assert.Contains(t, out, "expects a number")
	assert.Contains(t, out, `unknown server field "nope"`)

	reloaded, err := config.Load(filepath.Dir(cfg.Path()))
	require.NoError(t, err)
	assert.Equal(t, 12000, reloaded.GetServer().Port)
}

func TestHistoryCommands(t *testing.T) {
	c, _, _, _ := newTestCLI(t, nil)
	out := run(t, c, "history chat\n")
	assert.Contains(t, out, "history is disabled")

	hs, err := db.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer hs.Close()

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, hs.RecordChat(ctx, "s1", text.New("first line"), now.Add(-time.Second)))
	require.NoError(t, hs.RecordChat(ctx, "s1", text.New("second line"), now))
	require.NoError(t, hs.RecordSighting(ctx, "s1", db.SightingJoined, protocol.Player{ID: 3, Name: "Bea"}, now))
	require.NoError(t, hs.RecordSighting(ctx, "s1", db.SightingJoined, protocol.Player{ID: 4, Name: "Cy"}, now))

	c, _, _, _ = newTestCLI(t, hs)
	out = run(t, c, "history chat 1\nhistory players Bea\nhistory chat x\nhistory bogus\n")
	assert.Contains(t, out, "second line")
	assert.NotContains(t, out, "first line")
	assert.Contains(t, out, "Bea")
	assert.NotContains(t, out, "Cy")
	assert.Contains(t, out, "invalid count: x")
	assert.Contains(t, out, `unknown history table "bogus"`)
}

func TestQuitEmitsShutdown(t *testing.T) {
	c, _, _, bus := newTestCLI(t, nil)

	got := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "test", func(ctx context.Context, e events.Event) error {
		got <- struct{}{}
		return nil
	})

	run(t, c, "quit\n")
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("shutdown not emitted")
	}
}
