package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrShortPayload is returned for payloads too small to hold a kind.
var ErrShortPayload = errors.New("payload shorter than packet kind")

// Parser decodes inbound payloads into typed packets.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a new payload parser.
func NewParser() *Parser {
	return &Parser{
		logger: log.With().Str("component", "parser").Logger(),
	}
}

// Parse decodes a payload. Kinds without a decoder come back as *Unknown
// rather than an error so newer servers stay compatible.
func (p *Parser) Parse(payload []byte) (Packet, error) {
	if len(payload) < KindSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}

	kind := Kind(Uint32LE(payload[:KindSize]))
	r := bytes.NewReader(payload[KindSize:])

	switch kind {
	case KindAuth:
		return p.parseAuth(r)
	case KindChat:
		return p.parseChat(r)
	case KindPing:
		return &Ping{}, nil
	case KindPlayerList:
		return p.parsePlayerList(r)
	case KindSetDisconnectMessage:
		return p.parseDisconnect(r)
	case KindServerInfo:
		return p.parseServerInfo(r)
	default:
		p.logger.Trace().
			Stringer("kind", kind).
			Int("payload_len", len(payload)).
			Msg("unhandled packet")
		return &Unknown{Type: kind, Payload: payload[KindSize:]}, nil
	}
}

// parseAuth handles the auth result: [status:4][player_id:1].
func (p *Parser) parseAuth(r *bytes.Reader) (*AuthResponse, error) {
	status, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse auth status: %w", err)
	}
	id, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to parse auth player id: %w", err)
	}

	return &AuthResponse{Status: AuthStatus(status), PlayerID: id}, nil
}

func (p *Parser) parseChat(r *bytes.Reader) (*Chat, error) {
	msg, err := ReadNullString(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chat message: %w", err)
	}
	return &Chat{Message: msg}, nil
}

// parsePlayerList handles [count:1] followed by count player records.
func (p *Parser) parsePlayerList(r *bytes.Reader) (*PlayerList, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to parse player count: %w", err)
	}

	players := make([]Player, 0, count)
	for i := 0; i < int(count); i++ {
		name, err := ReadNullString(r)
		if err != nil {
			return nil, fmt.Errorf("failed to parse player %d name: %w", i, err)
		}

		var fields [3]byte
		if _, err := io.ReadFull(r, fields[:]); err != nil {
			return nil, fmt.Errorf("failed to parse player %d fields: %w", i, err)
		}

		players = append(players, Player{
			Name:  name,
			ID:    fields[0],
			Flags: fields[1],
			Group: fields[2],
		})
	}

	return &PlayerList{Players: players}, nil
}

func (p *Parser) parseDisconnect(r *bytes.Reader) (*DisconnectMessage, error) {
	reason, err := ReadNullString(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse disconnect reason: %w", err)
	}
	return &DisconnectMessage{Reason: reason}, nil
}

func (p *Parser) parseServerInfo(r *bytes.Reader) (*ServerInfoResponse, error) {
	doc, err := ReadNullString(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server info: %w", err)
	}
	return &ServerInfoResponse{JSON: doc}, nil
}

// ReadNullString reads UTF-8 bytes up to and excluding a zero terminator.
// Running out of input before the terminator is an error.
func ReadNullString(r io.ByteReader) (string, error) {
	var buf bytes.Buffer
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

func readUint32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return Uint32LE(tmp[:]), nil
}
