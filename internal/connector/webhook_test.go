package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/text"
)

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

func webhookServer(t *testing.T) (*httptest.Server, chan embed) {
	t.Helper()
	got := make(chan embed, 16)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Embeds []embed `json:"embeds"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && assert.Len(t, body.Embeds, 1) {
			got <- body.Embeds[0]
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)
	return ts, got
}

func receive(t *testing.T, got chan embed) embed {
	t.Helper()
	select {
	case e := <-got:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
		return embed{}
	}
}

func TestWebhookRelaysSessionEvents(t *testing.T) {
	ts, got := webhookServer(t)

	bus := events.NewEventBus()
	wr := NewWebhookRelay(config.WebhookConfig{Enabled: true, URL: ts.URL, RelayChat: true, RelayRoster: true}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wr.Run(ctx)

	bus.EmitSync(ctx, events.Event{
		Type:    events.EventChatMessage,
		Payload: events.ChatMessagePayload{SessionID: "s1", Message: text.New(string(text.Red) + "hello")},
	})
	e := receive(t, got)
	assert.Equal(t, "Chat", e.Title)
	assert.Equal(t, "hello", e.Description)
	assert.Equal(t, colorChat, e.Color)

	bus.EmitSync(ctx, events.Event{
		Type:    events.EventPlayerLeft,
		Payload: events.PlayerPayload{SessionID: "s1", Player: protocol.Player{ID: 2, Name: "Bea"}},
	})
	e = receive(t, got)
	assert.Equal(t, "Player left", e.Title)
	assert.Equal(t, "Bea left the park", e.Description)

	bus.EmitSync(ctx, events.Event{
		Type:    events.EventDisconnected,
		Payload: events.DisconnectedPayload{SessionID: "s1", Cause: "server", Reason: "closing"},
	})
	e = receive(t, got)
	assert.Equal(t, "Session ended (server): closing", e.Description)
}

func TestWebhookRespectsRelayFlags(t *testing.T) {
	bus := events.NewEventBus()
	NewWebhookRelay(config.WebhookConfig{Enabled: true, URL: "https://example.invalid"}, bus)

	assert.Zero(t, bus.HandlerCount(events.EventChatMessage))
	assert.Zero(t, bus.HandlerCount(events.EventPlayerJoined))
	assert.Equal(t, 1, bus.HandlerCount(events.EventDisconnected))
}

func TestWebhookQueueDropsWhenFull(t *testing.T) {
	bus := events.NewEventBus()
	wr := NewWebhookRelay(config.WebhookConfig{Enabled: true, URL: "https://example.invalid", RelayChat: true}, bus)

	for i := 0; i < webhookQueueSize+10; i++ {
		require.NoError(t, wr.onChat(context.Background(), events.Event{
			Type:    events.EventChatMessage,
			Payload: events.ChatMessagePayload{Message: text.New("spam")},
		}))
	}
	assert.Len(t, wr.queue, webhookQueueSize)
}
