package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
)

func newTestHandler(t *testing.T) (*MQTTHandler, *events.EventBus) {
	t.Helper()

	cfg := config.DefaultConfig().Application.MQTT
	cfg.Enabled = true
	cfg.UseTLS = false
	cfg.BrokerURL = "127.0.0.1"
	cfg.Port = 1883

	bus := events.NewEventBus()
	h, err := NewMQTTHandler(cfg, bus, "test")
	require.NoError(t, err)
	return h, bus
}

func TestDisabledHandler(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{}, events.NewEventBus(), "test")
	assert.Error(t, err)
}

func TestBuildMessage(t *testing.T) {
	h, _ := newTestHandler(t)

	msg := h.buildMessage(string(events.EventPlayerJoined), events.PlayerPayload{
		SessionID: "s1",
		Player:    protocol.Player{ID: 4, Name: "Dana"},
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "player_joined", decoded["event"])
	assert.Equal(t, "test", decoded["app_version"])
	assert.Contains(t, decoded, "hostname")
	assert.Contains(t, decoded, "timestamp")

	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, "Dana", payload["player"].(map[string]interface{})["name"])
}

func TestTopics(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.Equal(t, "parklink/chat", h.topic(TopicChat))
	assert.Equal(t, TopicRoster, eventTopics[events.EventPlayerLeft])
	assert.Equal(t, TopicSession, eventTopics[events.EventDisconnected])
}

func TestReconnectCommand(t *testing.T) {
	h, bus := newTestHandler(t)

	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventReconnect, "test", func(ctx context.Context, e events.Event) error {
		got <- e
		return nil
	})

	h.handleCommand(command{Action: "reconnect"})

	select {
	case e := <-got:
		assert.Equal(t, "mqtt", e.Source)
	case <-time.After(time.Second):
		t.Fatal("reconnect event not emitted")
	}
}

func TestPublishWhileDisconnectedIsNoop(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.NoError(t, h.onEvent(context.Background(), events.Event{Type: events.EventChatMessage}))
}
