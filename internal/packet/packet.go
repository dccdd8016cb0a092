// Package packet implements the chat wire format: a length-prefixed frame
// carrying a JSON-encoded [Packet].
//
// Frame layout:
//
//	[4-byte LE opcode][4-byte LE payload length][payload]
//
// Peers are free to send arbitrary bytes instead; receivers use [DecodeAll]
// and fall back to treating the bytes as plain text when it fails.
package packet

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode identifies the kind of frame.
type Opcode uint32

const (
	// OpHandshake opens a session.
	OpHandshake Opcode = 0
	// OpMessage carries a chat [Packet].
	OpMessage Opcode = 1
	// OpClose announces that the sender is going away.
	OpClose Opcode = 2

	// headerSize is the 4-byte opcode plus the 4-byte payload length.
	headerSize = 8

	// MaxPayloadSize is the largest payload accepted in either direction (1 MB).
	MaxPayloadSize = 1 << 20
)

// ErrPayloadTooLarge is returned when a payload exceeds [MaxPayloadSize].
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrUnexpectedOpcode is returned by [DecodeAll] for frames that do not carry
// a chat message.
var ErrUnexpectedOpcode = errors.New("unexpected opcode")

// ErrEmpty is returned by [DecodeAll] when given no bytes.
var ErrEmpty = errors.New("empty buffer")

// ///////////////////////////////////////////////
// Packet
// ///////////////////////////////////////////////

// Packet is a chat message with its sender.
type Packet struct {
	// Len is len(ID)+len(Data), kept for peers that size buffers from it.
	Len int `json:"len"`
	// ID identifies the sender.
	ID string `json:"id"`
	// Data is the message text.
	Data string `json:"data"`
}

// New builds a packet from id and data with Len filled in.
func New(id, data string) Packet {
	return Packet{Len: len(id) + len(data), ID: id, Data: data}
}

// WithData returns a copy of p carrying data, with Len recomputed.
func (p Packet) WithData(data string) Packet {
	return New(p.ID, data)
}

// ///////////////////////////////////////////////
// Frame Encoding
// ///////////////////////////////////////////////

// EncodeFrame builds a frame: [4-byte LE opcode][4-byte LE length][payload].
func EncodeFrame(opcode Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// Encode marshals p and wraps it in an [OpMessage] frame.
func Encode(p Packet) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling packet: %w", err)
	}
	return EncodeFrame(OpMessage, payload)
}

// ///////////////////////////////////////////////
// Frame Decoding
// ///////////////////////////////////////////////

// DecodeFrame reads a single frame from reader, handling partial reads via
// io.ReadFull.
func DecodeFrame(reader io.Reader) (opcode Opcode, payload []byte, err error) {
	header := make([]byte, headerSize)
	if _, err = io.ReadFull(reader, header); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	opcode = Opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])

	if length > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, length, MaxPayloadSize)
	}

	payload = make([]byte, length)
	if _, err = io.ReadFull(reader, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	return opcode, payload, nil
}

// DecodeAll decodes every frame in buf as a chat packet. It fails unless buf
// is exactly a sequence of complete [OpMessage] frames with JSON payloads,
// which is the signal for callers to treat buf as raw text instead.
func DecodeAll(buf []byte) ([]Packet, error) {
	if len(buf) == 0 {
		return nil, ErrEmpty
	}

	r := bytes.NewReader(buf)
	var packets []Packet
	for r.Len() > 0 {
		opcode, payload, err := DecodeFrame(r)
		if err != nil {
			return nil, err
		}
		if opcode != OpMessage {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedOpcode, opcode)
		}
		var p Packet
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("parsing packet: %w", err)
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// Missing reports how many more bytes buf needs when it holds complete
// [OpMessage] frames followed by one whose header is complete but whose
// payload is cut short, as happens when a frame is larger than a read
// buffer. It returns 0 for anything else, including complete buffers and
// bytes that are not frames at all.
func Missing(buf []byte) int {
	for len(buf) >= headerSize {
		opcode := Opcode(binary.LittleEndian.Uint32(buf[0:4]))
		length := binary.LittleEndian.Uint32(buf[4:8])
		if opcode != OpMessage || length > MaxPayloadSize {
			return 0
		}
		end := headerSize + int(length)
		if end > len(buf) {
			return end - len(buf)
		}
		buf = buf[end:]
	}
	return 0
}
