// File: protocol/frame_codec.go
// Package protocol implements the length-prefixed chat frame codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Implements frame encoding/decoding with payload size limits
// to prevent resource exhaustion in high-load scenarios.

package protocol

import (
	"encoding/binary"
	"errors"
)

// Codec errors.
var (
	// ErrFrameTooLarge reports a frame whose declared payload length
	// exceeds the configured limit. The stream cannot be resynced past
	// such a frame, so the connection must be closed.
	ErrFrameTooLarge = errors.New("protocol: frame payload exceeds configured limit")

	// ErrPayloadTooLarge reports an encode request whose payload does
	// not fit the 16-bit length field.
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 65535 bytes")
)

// DecodeFrame parses the first complete frame out of window,
// enforcing maxPayload (clamped to MaxPayload; non-positive means
// MaxPayload). Returns frame, consumed bytes, and error.
// If the window holds no complete frame yet, returns (nil, 0, nil).
//
// The payload is copied out of window, so the caller may compact or
// reuse the window immediately after the call. Callers drain coalesced
// frames by looping until consumed == 0.
func DecodeFrame(window []byte, maxPayload int) (*Frame, int, error) {
	if maxPayload <= 0 || maxPayload > MaxPayload {
		maxPayload = MaxPayload
	}
	if len(window) < HeaderSize {
		return nil, 0, nil // Incomplete
	}

	length := int(binary.BigEndian.Uint16(window[1:HeaderSize]))
	if length > maxPayload {
		return nil, 0, ErrFrameTooLarge
	}

	total := HeaderSize + length
	if len(window) < total {
		return nil, 0, nil // Incomplete
	}

	payload := make([]byte, length)
	copy(payload, window[HeaderSize:total])

	return &Frame{Type: MsgType(window[0]), Payload: payload}, total, nil
}

// EncodeFrame serializes a frame into a fresh []byte.
func EncodeFrame(t MsgType, payload []byte) ([]byte, error) {
	return AppendFrame(nil, t, payload)
}

// AppendFrame serializes a frame onto dst, minimizing allocations when
// the caller manages the buffer. Returned slice aliases dst.
func AppendFrame(dst []byte, t MsgType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrPayloadTooLarge
	}
	var hdr [HeaderSize]byte
	hdr[0] = byte(t)
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst, nil
}
