// File: protocol/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame model and message type registry for the chat wire protocol.

package protocol

import "fmt"

// Wire layout constants. Every frame is HeaderSize bytes of header
// followed by up to MaxPayload bytes of payload. The length field is an
// unsigned 16-bit big-endian integer, so MaxPayload is a hard protocol
// ceiling, not a tunable.
const (
	// HeaderSize is the fixed frame header length: type byte plus
	// 16-bit payload length.
	HeaderSize = 3

	// MaxPayload is the largest payload the length field can express.
	MaxPayload = 65535
)

// MsgType identifies the kind of a frame. Unknown values still parse
// at the framing layer; rejecting them is the dispatcher's job.
type MsgType uint8

// Message types understood by the server.
const (
	MsgLogin     MsgType = 0x01 // client -> server: bind an identity
	MsgMessage   MsgType = 0x02 // direct message (both directions)
	MsgBroadcast MsgType = 0x03 // fan-out message (both directions)
	MsgPing      MsgType = 0x04 // client -> server liveness probe
	MsgPong      MsgType = 0x05 // server -> client probe reply
	MsgError     MsgType = 0xFF // server -> client failure report
)

// Known reports whether t is a type the protocol defines.
func (t MsgType) Known() bool {
	switch t {
	case MsgLogin, MsgMessage, MsgBroadcast, MsgPing, MsgPong, MsgError:
		return true
	}
	return false
}

// String returns a human-readable name for logging.
func (t MsgType) String() string {
	switch t {
	case MsgLogin:
		return "LOGIN"
	case MsgMessage:
		return "MESSAGE"
	case MsgBroadcast:
		return "BROADCAST"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// Frame is one decoded protocol unit. Payload is owned by the frame:
// DecodeFrame copies it out of the read window, so a frame stays valid
// after the window is compacted or reused.
type Frame struct {
	Type    MsgType
	Payload []byte
}

// Len returns the payload length in bytes.
func (f *Frame) Len() int {
	return len(f.Payload)
}

// WireSize returns the full encoded size of the frame.
func (f *Frame) WireSize() int {
	return HeaderSize + len(f.Payload)
}
