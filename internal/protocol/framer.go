package protocol

import (
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a payload does not fit a 16-bit length.
var ErrFrameTooLarge = errors.New("frame payload exceeds 65535 bytes")

// ReadFrame reads a single length-prefixed frame from r.
// Frame format: [2-byte BE length][payload bytes...]
// Returns the payload without the prefix. Reads loop until the whole frame
// is in, whatever the transport's read boundaries are.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := Length(prefix[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read frame payload (%d bytes): %w", length, err)
	}

	return payload, nil
}

// WriteFrame writes payload to w behind its length prefix. Prefix and
// payload go out in a single Write so concurrent writers serialized by the
// caller never interleave.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, LengthPrefixSize+len(payload))
	PutLength(frame, uint16(len(payload)))
	copy(frame[LengthPrefixSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
