// Package telemetry publishes session events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/util"
)

// Topic suffixes, appended to the configured prefix.
const (
	TopicSession = "session"
	TopicChat    = "chat"
	TopicRoster  = "roster"
	TopicStatus  = "status"
	TopicCommand = "command"
)

// eventTopics maps each published event to its topic suffix.
var eventTopics = map[events.EventType]string{
	events.EventConnected:         TopicSession,
	events.EventDisconnected:      TopicSession,
	events.EventAuthenticated:     TopicSession,
	events.EventChatMessage:       TopicChat,
	events.EventPlayerListUpdated: TopicRoster,
	events.EventPlayerJoined:      TopicRoster,
	events.EventPlayerLeft:        TopicRoster,
	events.EventHeartbeat:         TopicStatus,
}

// MQTTHandler manages the MQTT connection and publishes telemetry events.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	logger   zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, version string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	host := util.GetHostInfo()
	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   util.ComponentLogger("mqtt"),
		metadata: map[string]interface{}{
			"hostname":    host.Hostname,
			"os":          host.OS,
			"arch":        host.Architecture,
			"app_version": version,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("parklink-%s", host.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		handler.logger.Info().Msg("MQTT connected")
		topic := handler.topic(TopicCommand)
		if token := client.Subscribe(topic, 1, handler.onCommand); token.Wait() && token.Error() != nil {
			handler.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("failed to subscribe to command topic")
		}
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		handler.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the broker and publishes events until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	defer h.unsubscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")

	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	for et := range eventTopics {
		h.eventBus.Subscribe(et, "mqtt", h.onEvent)
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for et := range eventTopics {
		h.eventBus.Unsubscribe(et, "mqtt")
	}
}

func (h *MQTTHandler) topic(suffix string) string {
	return h.cfg.TopicPrefix + "/" + suffix
}

// publish sends a JSON message to an MQTT topic without waiting for the
// broker, so event handlers return immediately.
func (h *MQTTHandler) publish(topic string, event string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	suffix, ok := eventTopics[event.Type]
	if !ok {
		return nil
	}
	h.publish(h.topic(suffix), string(event.Type), event.Payload)
	return nil
}

// command is a remote instruction received on the command topic.
type command struct {
	Action string `json:"action"`
}

func (h *MQTTHandler) onCommand(client mqtt.Client, msg mqtt.Message) {
	var cmd command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Warn().Err(err).Msg("malformed MQTT command")
		return
	}
	h.handleCommand(cmd)
}

func (h *MQTTHandler) handleCommand(cmd command) {
	switch cmd.Action {
	case "reconnect":
		h.logger.Info().Msg("reconnect requested over MQTT")
		h.eventBus.Emit(context.Background(), events.Event{Type: events.EventReconnect, Source: "mqtt"})
	default:
		h.logger.Warn().Str("action", cmd.Action).Msg("unknown MQTT command")
	}
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.topic(TopicStatus), "shutdown", nil)
}
