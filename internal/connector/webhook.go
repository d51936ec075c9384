package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/util"
)

const (
	webhookQueueSize = 128
	webhookTimeout   = 10 * time.Second

	colorInfo    = 0x00FF00
	colorWarning = 0xFFAA00
	colorChat    = 0x3498DB
)

type webhookMessage struct {
	title   string
	message string
	color   int
}

// WebhookRelay posts chat lines and roster changes to a Discord webhook.
// Event handlers only enqueue, so a slow webhook never stalls the receive
// loop; messages that do not fit in the queue are dropped.
type WebhookRelay struct {
	cfg    config.WebhookConfig
	client *http.Client
	queue  chan webhookMessage
	logger zerolog.Logger
}

// NewWebhookRelay creates a relay and subscribes it to the session events
// enabled in cfg.
func NewWebhookRelay(cfg config.WebhookConfig, eventBus *events.EventBus) *WebhookRelay {
	wr := &WebhookRelay{
		cfg:    cfg,
		client: &http.Client{Timeout: webhookTimeout},
		queue:  make(chan webhookMessage, webhookQueueSize),
		logger: util.ComponentLogger("webhook"),
	}

	if cfg.RelayChat {
		eventBus.Subscribe(events.EventChatMessage, "webhook.chat", wr.onChat)
	}
	if cfg.RelayRoster {
		eventBus.SubscribeMany([]events.EventType{events.EventPlayerJoined, events.EventPlayerLeft},
			"webhook.roster", wr.onPlayer)
	}
	eventBus.Subscribe(events.EventDisconnected, "webhook.disconnected", wr.onDisconnected)

	return wr
}

// Run delivers queued messages until ctx is cancelled.
func (wr *WebhookRelay) Run(ctx context.Context) error {
	wr.logger.Info().Msg("webhook relay started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-wr.queue:
			if err := wr.send(ctx, msg); err != nil {
				wr.logger.Warn().Err(err).Str("title", msg.title).Msg("webhook delivery failed")
			}
		}
	}
}

func (wr *WebhookRelay) enqueue(msg webhookMessage) {
	select {
	case wr.queue <- msg:
	default:
		wr.logger.Warn().Str("title", msg.title).Msg("webhook queue full, dropping message")
	}
}

func (wr *WebhookRelay) onChat(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ChatMessagePayload)
	if !ok {
		return nil
	}
	wr.enqueue(webhookMessage{title: "Chat", message: payload.Message.String(), color: colorChat})
	return nil
}

func (wr *WebhookRelay) onPlayer(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return nil
	}

	verb := "joined"
	if event.Type == events.EventPlayerLeft {
		verb = "left"
	}
	wr.enqueue(webhookMessage{
		title:   fmt.Sprintf("Player %s", verb),
		message: fmt.Sprintf("%s %s the park", payload.Player.Name, verb),
		color:   colorInfo,
	})
	return nil
}

func (wr *WebhookRelay) onDisconnected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DisconnectedPayload)
	if !ok {
		return nil
	}

	msg := fmt.Sprintf("Session ended (%s)", payload.Cause)
	if payload.Reason != "" {
		msg += ": " + payload.Reason
	}
	wr.enqueue(webhookMessage{title: "Disconnected", message: msg, color: colorWarning})
	return nil
}

func (wr *WebhookRelay) send(ctx context.Context, msg webhookMessage) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       msg.title,
				"description": msg.message,
				"color":       msg.color,
				"timestamp":   time.Now().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "parklink",
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wr.cfg.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wr.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	wr.logger.Debug().Str("title", msg.title).Msg("webhook notification sent")
	return nil
}
