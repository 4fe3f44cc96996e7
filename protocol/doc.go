// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the chat wire format: a compact TLV
// framing (1-byte type, 2-byte big-endian length, payload) plus the
// payload codecs for login, direct message, broadcast and error frames.
//
// The codec is pure: it never touches sockets and carries no state, so
// callers feed it whatever byte windows the transport produced. Frames
// split or merged by TCP are reassembled by calling DecodeFrame in a
// loop until it reports no progress.
package protocol
