// Package events defines the session events published by the client and the
// bus that fans them out to subscribers.
package events

import (
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/text"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventConnected     EventType = "connected"
	EventDisconnected  EventType = "disconnected"
	EventAuthenticated EventType = "authenticated"

	// Server traffic
	EventChatMessage       EventType = "chat_message"
	EventPlayerListUpdated EventType = "player_list_updated"
	EventPlayerJoined      EventType = "player_joined"
	EventPlayerLeft        EventType = "player_left"

	// Application
	EventReconnect EventType = "cmd_reconnect"
	EventShutdown  EventType = "shutdown"
	EventHeartbeat EventType = "heartbeat"
)

// SessionEvents lists every event a client session can emit.
var SessionEvents = []EventType{
	EventConnected,
	EventDisconnected,
	EventAuthenticated,
	EventChatMessage,
	EventPlayerListUpdated,
	EventPlayerJoined,
	EventPlayerLeft,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ConnectedPayload is emitted once the transport is up.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
	Remote    string `json:"remote"`
}

// DisconnectedPayload is emitted exactly once per session.
type DisconnectedPayload struct {
	SessionID string `json:"session_id"`
	// Reason is the server's disconnect message, empty if none was sent.
	Reason string `json:"reason,omitempty"`
	// Cause names what ended the session: "server", "liveness", "transport" or "closed".
	Cause string `json:"cause"`
	Err   error  `json:"-"`
}

// AuthenticatedPayload carries every auth result, including rejections.
type AuthenticatedPayload struct {
	SessionID string              `json:"session_id"`
	Status    protocol.AuthStatus `json:"status"`
	PlayerID  uint8               `json:"player_id"`
	Username  string              `json:"username"`
}

// ChatMessagePayload carries one received chat line.
type ChatMessagePayload struct {
	SessionID string      `json:"session_id"`
	Message   text.String `json:"message"`
}

// PlayerListPayload carries the full roster after an update.
type PlayerListPayload struct {
	SessionID string            `json:"session_id"`
	Players   []protocol.Player `json:"players"`
}

// PlayerPayload names the player that joined or left.
type PlayerPayload struct {
	SessionID string          `json:"session_id"`
	Player    protocol.Player `json:"player"`
}

// HeartbeatPayload is a periodic snapshot of the session and the process.
type HeartbeatPayload struct {
	SessionID  string  `json:"session_id,omitempty"`
	State      string  `json:"state"`
	AuthState  string  `json:"auth_state"`
	Players    int     `json:"players"`
	RSSMB      uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}
