package protocol

import (
	"encoding/binary"
	"math/bits"
)

// Swap16 reverses the byte order of v. Applying it twice yields v.
func Swap16(v uint16) uint16 {
	return bits.ReverseBytes16(v)
}

// Swap32 reverses the byte order of v. Applying it twice yields v.
func Swap32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

// PutLength writes a frame length prefix. Prefixes are big-endian.
func PutLength(b []byte, n uint16) {
	binary.BigEndian.PutUint16(b, n)
}

// Length reads a frame length prefix.
func Length(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// PutUint32LE writes a payload integer. Payload integers are little-endian.
func PutUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// Uint32LE reads a payload integer.
func Uint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
