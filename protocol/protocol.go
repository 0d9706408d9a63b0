// Package protocol implements the VulSim control-channel frame format.
//
// Every message on the wire (control requests, control responses, and
// pushed log events) is one frame: a fixed 8-byte header followed by a
// variable-length JSON payload. The receiver reads the header first to
// determine the payload length, then reads exactly that many bytes.
//
// Frame format:
//
//	0          4          8
//	┌──────────┬──────────┬────────────────────────┐
//	│  magic   │  length  │      payload ...       │
//	│  uint32  │  uint32  │ length bytes, UTF-8    │
//	│0x37549260│          │ JSON (+ optional NULs) │
//	└──────────┴──────────┴────────────────────────┘
//
// Both header integers are encoded in the connection's byte order. The
// protocol does not negotiate byte order explicitly: the control client
// guesses (little-endian by default) and corrects itself after a framing
// failure, so every function here takes the order as a parameter instead
// of assuming network byte order.
//
// Some backend builds pad the JSON payload with one or more trailing NUL
// bytes; ReadFrame strips them before handing the payload to the caller.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic identifies a valid VulSim frame. A header whose first word does
	// not match under the expected byte order is rejected, which is also how
	// a wrong byte-order guess is detected.
	Magic uint32 = 0x37549260

	// HeaderSize is the fixed header length: magic (4) + payload length (4).
	HeaderSize = 8

	// MaxPayloadSize bounds the declared payload length. Anything larger is
	// treated as a corrupted or mis-synced stream, not a real payload, so the
	// receiver fails before attempting an unbounded blocking read.
	MaxPayloadSize = 10 * 1024 * 1024
)

var (
	ErrBadMagic        = errors.New("protocol: bad magic number")
	ErrPayloadTooLarge = errors.New("protocol: payload length exceeds limit")
	ErrBadByteOrder    = errors.New("protocol: byte order must be \"little\" or \"big\"")
)

// ByteOrder selects how the two header integers are encoded.
type ByteOrder byte

const (
	LittleEndian ByteOrder = iota // backend default
	BigEndian
)

// ParseByteOrder converts a configuration string into a ByteOrder.
// Only "little" and "big" are accepted.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch s {
	case "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return LittleEndian, fmt.Errorf("%w: got %q", ErrBadByteOrder, s)
	}
}

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big"
	}
	return "little"
}

// Flip returns the opposite byte order. The control client flips its stored
// order once per failed call to self-correct a wrong initial guess.
func (o ByteOrder) Flip() ByteOrder {
	if o == BigEndian {
		return LittleEndian
	}
	return BigEndian
}

func (o ByteOrder) byteOrder() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// EncodeHeader builds the 8-byte header for a payload of the given length.
func EncodeHeader(length uint32, order ByteOrder) []byte {
	buf := make([]byte, HeaderSize)
	bo := order.byteOrder()
	bo.PutUint32(buf[0:4], Magic)
	bo.PutUint32(buf[4:8], length)
	return buf
}

// DecodeHeader unpacks magic and payload length from an 8-byte header.
// It does not validate the magic value; callers compare against Magic so
// they can distinguish "wrong byte order" from other failures.
func DecodeHeader(b []byte, order ByteOrder) (magic, length uint32, err error) {
	if len(b) != HeaderSize {
		return 0, 0, fmt.Errorf("protocol: invalid header length: %d", len(b))
	}
	bo := order.byteOrder()
	return bo.Uint32(b[0:4]), bo.Uint32(b[4:8]), nil
}

// DetectByteOrder inspects a raw header and reports which byte order its
// magic word matches. Used by servers that must answer clients with unknown
// byte order: the first request frame reveals the client's encoding.
func DetectByteOrder(b []byte) (ByteOrder, error) {
	if len(b) != HeaderSize {
		return LittleEndian, fmt.Errorf("protocol: invalid header length: %d", len(b))
	}
	if magic, _, _ := DecodeHeader(b, LittleEndian); magic == Magic {
		return LittleEndian, nil
	}
	if magic, _, _ := DecodeHeader(b, BigEndian); magic == Magic {
		return BigEndian, nil
	}
	return LittleEndian, fmt.Errorf("%w: 0x%08X", ErrBadMagic, binary.LittleEndian.Uint32(b[0:4]))
}

// WriteFrame writes a complete frame (header + payload) to w.
// The payload must already be serialized; its exact byte count goes into the
// header, so the serializer must not add trailing whitespace or padding.
//
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func WriteFrame(w io.Writer, payload []byte, order ByteOrder) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if _, err := w.Write(EncodeHeader(uint32(len(payload)), order)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one complete frame from r and returns its payload with any
// trailing NUL padding stripped.
//
// Validation order matters for the control client's retry heuristic:
//  1. magic mismatch → ErrBadMagic (likely wrong byte-order guess)
//  2. declared length > MaxPayloadSize → ErrPayloadTooLarge, rejected BEFORE
//     any payload byte is read
//
// Uses io.ReadFull so exactly HeaderSize then length bytes are consumed,
// keeping frame boundaries intact on the stream.
func ReadFrame(r io.Reader, order ByteOrder) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	magic, length, err := DecodeHeader(header, order)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	if length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	// Some C++ backends pad the JSON with trailing \x00 bytes.
	return bytes.TrimRight(payload, "\x00"), nil
}
