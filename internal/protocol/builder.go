package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrEmbeddedNull is returned for a string field that contains a zero byte,
// which would end the field early on the wire.
var ErrEmbeddedNull = errors.New("string contains a NUL byte")

// PacketBuilder constructs payloads for sending to the server.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a builder whose payload starts with kind.
func NewPacketBuilder(kind Kind) *PacketBuilder {
	b := &PacketBuilder{}
	b.WriteUint32(uint32(kind))
	return b
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	var tmp [4]byte
	PutUint32LE(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteNullString writes s as UTF-8 followed by a zero terminator.
// An empty string is a lone terminator.
func (b *PacketBuilder) WriteNullString(s string) *PacketBuilder {
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	return b
}

// CheckNullString reports whether s can be written as a single
// null-terminated field.
func CheckNullString(field, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%s: %w", field, ErrEmbeddedNull)
	}
	return nil
}

// Build returns the constructed payload bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// Len returns the current size of the payload being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current payload for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

// ---- Pre-built packet constructors ----

// BuildAuth creates an auth request.
// Format: [kind:4][version:null_str][username:null_str][password:null_str]
func BuildAuth(version, username, password string) []byte {
	return NewPacketBuilder(KindAuth).
		WriteNullString(version).
		WriteNullString(username).
		WriteNullString(password).
		Build()
}

// BuildChat creates a chat packet.
// Format: [kind:4][message:null_str]
func BuildChat(message string) []byte {
	return NewPacketBuilder(KindChat).WriteNullString(message).Build()
}

// BuildPing creates a ping, used to answer the server's liveness probe.
// Format: [kind:4]
func BuildPing() []byte {
	return NewPacketBuilder(KindPing).Build()
}

// BuildServerInfoRequest asks the server to describe itself.
// Format: [kind:4]
func BuildServerInfoRequest() []byte {
	return NewPacketBuilder(KindServerInfo).Build()
}

// ---- Server-side encoders, used by fake servers in tests and tools ----

// BuildAuthResponse creates an inbound auth result.
// Format: [kind:4][status:4][player_id:1]
func BuildAuthResponse(status AuthStatus, playerID uint8) []byte {
	return NewPacketBuilder(KindAuth).
		WriteUint32(uint32(status)).
		WriteUint8(playerID).
		Build()
}

// BuildPlayerList creates a roster snapshot.
// Format: [kind:4][count:1] then per player [name:null_str][id:1][flags:1][group:1]
func BuildPlayerList(players []Player) []byte {
	b := NewPacketBuilder(KindPlayerList).WriteUint8(uint8(len(players)))
	for _, p := range players {
		b.WriteNullString(p.Name).WriteUint8(p.ID).WriteUint8(p.Flags).WriteUint8(p.Group)
	}
	return b.Build()
}

// BuildDisconnectMessage creates a disconnect notice.
// Format: [kind:4][reason:null_str]
func BuildDisconnectMessage(reason string) []byte {
	return NewPacketBuilder(KindSetDisconnectMessage).WriteNullString(reason).Build()
}

// BuildServerInfo creates a server-info response.
// Format: [kind:4][json:null_str]
func BuildServerInfo(json string) []byte {
	return NewPacketBuilder(KindServerInfo).WriteNullString(json).Build()
}
