// File: protocol/wire_error.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire-visible error reporting. A WireError travels to the peer as an
// Error frame; fatal ones additionally close the connection.

package protocol

import "fmt"

// Numeric error codes carried in Error frame payloads. The 1xxx block
// covers framing and protocol faults, 2xxx covers chat-level routing
// and identity faults, 3xxx covers server-side failures.
const (
	CodeMalformedPayload     uint16 = 1000
	CodeUnknownType          uint16 = 1001
	CodeFrameTooLarge        uint16 = 1002
	CodeNotAuthenticated     uint16 = 1003
	CodeDuplicateIdentity    uint16 = 2001
	CodeRecipientUnknown     uint16 = 2002
	CodeInvalidIdentity      uint16 = 2003
	CodeAlreadyAuthenticated uint16 = 2004
	CodeInternal             uint16 = 3000
)

// WireError is an error that must be reported to the peer. Handlers
// return it to have the worker emit an Error frame; Fatal marks the
// connection unrecoverable, closing it after the report.
type WireError struct {
	Code    uint16
	Message string
	Fatal   bool
}

// NewWireError creates a wire error with the given code and message.
func NewWireError(code uint16, message string, fatal bool) *WireError {
	return &WireError{Code: code, Message: message, Fatal: fatal}
}

// Error implements the error interface.
func (e *WireError) Error() string {
	return fmt.Sprintf("wire error %d: %s", e.Code, e.Message)
}

// Payload renders the Error frame payload for this error.
func (e *WireError) Payload() []byte {
	return EncodeError(e.Code, e.Message)
}
