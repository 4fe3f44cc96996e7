// File: protocol/payload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Payload codecs for the individual frame types. All multi-byte
// integers are big-endian, matching the frame header.

package protocol

import (
	"encoding/binary"
	"errors"
	"unicode"
	"unicode/utf8"
)

// MaxIdentityLen bounds the byte length of a client identity.
const MaxIdentityLen = 64

// Payload codec errors.
var (
	// ErrMalformedPayload reports a payload that does not match the
	// layout its frame type requires.
	ErrMalformedPayload = errors.New("protocol: malformed payload")

	// ErrInvalidIdentity reports an identity that fails validation.
	ErrInvalidIdentity = errors.New("protocol: invalid identity")
)

// ParseIdentity validates and returns the identity carried in a Login
// payload. Identities are non-empty UTF-8, at most MaxIdentityLen
// bytes, with no control or whitespace runes.
func ParseIdentity(p []byte) (string, error) {
	if len(p) == 0 || len(p) > MaxIdentityLen {
		return "", ErrInvalidIdentity
	}
	if !utf8.Valid(p) {
		return "", ErrInvalidIdentity
	}
	for _, r := range string(p) {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", ErrInvalidIdentity
		}
	}
	return string(p), nil
}

// EncodeDirect builds the client-side Message payload: a 16-bit
// big-endian recipient length, the recipient identity, then the text.
func EncodeDirect(recipient string, text []byte) ([]byte, error) {
	return encodeTagged(recipient, text)
}

// DecodeDirect splits a client Message payload into recipient and
// text. The text slice aliases p.
func DecodeDirect(p []byte) (recipient string, text []byte, err error) {
	return decodeTagged(p)
}

// EncodeRelay builds the server-side Message/Broadcast payload
// delivered to recipients: a 16-bit big-endian sender length, the
// sender identity, then the text.
func EncodeRelay(sender string, text []byte) ([]byte, error) {
	return encodeTagged(sender, text)
}

// DecodeRelay splits a relayed payload into sender and text. The text
// slice aliases p.
func DecodeRelay(p []byte) (sender string, text []byte, err error) {
	return decodeTagged(p)
}

// EncodeError builds the Error payload: a 16-bit big-endian code
// followed by a UTF-8 message.
func EncodeError(code uint16, msg string) []byte {
	out := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(out, code)
	copy(out[2:], msg)
	return out
}

// DecodeError splits an Error payload into code and message.
func DecodeError(p []byte) (code uint16, msg string, err error) {
	if len(p) < 2 {
		return 0, "", ErrMalformedPayload
	}
	return binary.BigEndian.Uint16(p), string(p[2:]), nil
}

func encodeTagged(identity string, text []byte) ([]byte, error) {
	if len(identity) > MaxIdentityLen {
		return nil, ErrInvalidIdentity
	}
	total := 2 + len(identity) + len(text)
	if total > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	out := make([]byte, 0, total)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(identity)))
	out = append(out, l[:]...)
	out = append(out, identity...)
	out = append(out, text...)
	return out, nil
}

func decodeTagged(p []byte) (string, []byte, error) {
	if len(p) < 2 {
		return "", nil, ErrMalformedPayload
	}
	n := int(binary.BigEndian.Uint16(p))
	if n > MaxIdentityLen || len(p) < 2+n {
		return "", nil, ErrMalformedPayload
	}
	return string(p[2 : 2+n]), p[2+n:], nil
}
