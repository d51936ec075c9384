// Package protocol implements the binary wire format spoken by park
// simulation multiplayer servers. Every frame carries a 2-byte big-endian
// length prefix; payload integers are little-endian and every payload starts
// with a 4-byte packet kind.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind is the 4-byte discriminant at the start of every payload.
type Kind uint32

// Packet kinds, in wire order.
const (
	KindAuth Kind = iota
	KindMap
	KindChat
	KindGameCommand
	KindTick
	KindPlayerList
	KindPing
	KindPingList
	KindSetDisconnectMessage
	KindServerInfo
	KindShowError
	KindGroupList
)

var kindNames = map[Kind]string{
	KindAuth:                 "auth",
	KindMap:                  "map",
	KindChat:                 "chat",
	KindGameCommand:          "game_command",
	KindTick:                 "tick",
	KindPlayerList:           "player_list",
	KindPing:                 "ping",
	KindPingList:             "ping_list",
	KindSetDisconnectMessage: "set_disconnect_message",
	KindServerInfo:           "server_info",
	KindShowError:            "show_error",
	KindGroupList:            "group_list",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

const (
	// NetworkVersion is sent in every auth request and checked by the server.
	NetworkVersion = "0.0.4-1"

	// DefaultPort is the conventional server port.
	DefaultPort = 11753

	// MaxPayloadSize is the largest payload a 16-bit length prefix can describe.
	MaxPayloadSize = 65535

	// LengthPrefixSize is the size of the frame length prefix in bytes.
	LengthPrefixSize = 2

	// KindSize is the size of the payload kind discriminant in bytes.
	KindSize = 4
)

// AuthStatus is the result code carried by an inbound auth packet.
type AuthStatus uint32

const (
	AuthNone AuthStatus = iota
	AuthRequested
	AuthOK
	AuthBadVersion
	AuthBadName
	AuthBadPassword
	AuthFull
	AuthRequirePassword
)

var authStatusStrings = map[AuthStatus]string{
	AuthNone:            "none",
	AuthRequested:       "requested",
	AuthOK:              "ok",
	AuthBadVersion:      "bad_version",
	AuthBadName:         "bad_name",
	AuthBadPassword:     "bad_password",
	AuthFull:            "full",
	AuthRequirePassword: "require_password",
}

// String returns the lowercase name of the status.
func (s AuthStatus) String() string {
	if str, ok := authStatusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", uint32(s))
}

// MarshalJSON serializes AuthStatus as a JSON string (e.g. "ok").
func (s AuthStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (s *AuthStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	for status, str := range authStatusStrings {
		if str == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown auth status %q", name)
}

// Player is one roster entry. Two players are the same player when their
// IDs match.
type Player struct {
	ID    uint8  `json:"id"`
	Name  string `json:"name"`
	Flags uint8  `json:"flags"`
	Group uint8  `json:"group"`
}

// Packet is a decoded payload.
type Packet interface {
	Kind() Kind
}

// AuthResponse is the server's answer to an auth request.
type AuthResponse struct {
	Status   AuthStatus
	PlayerID uint8
}

// Chat carries one raw chat line, formatting codes included.
type Chat struct {
	Message string
}

// Ping is the liveness probe; it has no fields.
type Ping struct{}

// PlayerList is a full roster snapshot.
type PlayerList struct {
	Players []Player
}

// DisconnectMessage tells the client why the server is dropping it.
type DisconnectMessage struct {
	Reason string
}

// ServerInfoResponse carries the server's JSON description verbatim.
type ServerInfoResponse struct {
	JSON string
}

// Unknown is any kind this client does not handle.
type Unknown struct {
	Type    Kind
	Payload []byte
}

func (*AuthResponse) Kind() Kind       { return KindAuth }
func (*Chat) Kind() Kind               { return KindChat }
func (*Ping) Kind() Kind               { return KindPing }
func (*PlayerList) Kind() Kind         { return KindPlayerList }
func (*DisconnectMessage) Kind() Kind  { return KindSetDisconnectMessage }
func (*ServerInfoResponse) Kind() Kind { return KindServerInfo }
func (u *Unknown) Kind() Kind          { return u.Type }
