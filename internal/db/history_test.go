package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/text"
)

func openStore(t *testing.T) *HistoryStore {
	t.Helper()
	hs, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hs.Close() })
	return hs
}

func TestHistoryRecordsSessionEvents(t *testing.T) {
	hs := openStore(t)
	bus := events.NewEventBus()
	hs.Attach(bus)

	ctx := context.Background()
	alice := protocol.Player{ID: 1, Name: "Alice"}

	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventConnected,
		Payload: events.ConnectedPayload{SessionID: "s1", Remote: "10.0.0.1:11753"}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventChatMessage,
		Payload: events.ChatMessagePayload{SessionID: "s1", Message: text.New("\u008fhi there")}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventPlayerJoined,
		Payload: events.PlayerPayload{SessionID: "s1", Player: alice}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventPlayerLeft,
		Payload: events.PlayerPayload{SessionID: "s1", Player: alice}}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{Type: events.EventDisconnected,
		Payload: events.DisconnectedPayload{SessionID: "s1", Cause: "server", Reason: "bye"}}))

	chat, err := hs.RecentChat(ctx, 10)
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, "hi there", chat[0].Message)
	assert.Equal(t, "\u008fhi there", chat[0].Raw)
	assert.Equal(t, "s1", chat[0].SessionID)

	sightings, err := hs.RecentSightings(ctx, "Alice", 10)
	require.NoError(t, err)
	require.Len(t, sightings, 2)
	assert.Equal(t, SightingLeft, sightings[0].Kind)
	assert.Equal(t, SightingJoined, sightings[1].Kind)
	assert.Equal(t, uint8(1), sightings[0].PlayerID)

	sessions, err := hs.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "10.0.0.1:11753", sessions[0].Remote)
	assert.Equal(t, "server", sessions[0].Cause)
	assert.Equal(t, "bye", sessions[0].Reason)
	assert.False(t, sessions[0].EndedAt.IsZero())
}

func TestRecentChatNewestFirstWithLimit(t *testing.T) {
	hs := openStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, m := range []string{"one", "two", "three"} {
		require.NoError(t, hs.RecordChat(ctx, "s", text.New(m), now))
	}

	chat, err := hs.RecentChat(ctx, 2)
	require.NoError(t, err)
	require.Len(t, chat, 2)
	assert.Equal(t, "three", chat[0].Message)
	assert.Equal(t, "two", chat[1].Message)
}

func TestRecentSightingsFilter(t *testing.T) {
	hs := openStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, hs.RecordSighting(ctx, "s", SightingJoined, protocol.Player{ID: 1, Name: "Alice"}, now))
	require.NoError(t, hs.RecordSighting(ctx, "s", SightingJoined, protocol.Player{ID: 2, Name: "Bob"}, now))

	all, err := hs.RecentSightings(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bob, err := hs.RecentSightings(ctx, "Bob", 10)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, uint8(2), bob[0].PlayerID)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	hs, err := NewHistoryStore(path)
	require.NoError(t, err)
	require.NoError(t, hs.StartSession(ctx, "s1", "remote", time.Now()))
	require.NoError(t, hs.Close())

	hs, err = NewHistoryStore(path)
	require.NoError(t, err)
	defer hs.Close()

	sessions, err := hs.Sessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
