// File: internal/dispatch/dispatch.go
// Package dispatch routes decoded frames to per-type handlers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The handler table is fixed before serving starts, so Dispatch reads
// it without locking. An unknown frame type is never silently dropped:
// it comes back as a fatal wire error and the session is closed.

package dispatch

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-chat/protocol"
)

// HandlerFunc processes one inbound frame for a session.
type HandlerFunc func(sessionID uint64, frame *protocol.Frame) error

// Dispatcher maps frame types to handlers.
type Dispatcher struct {
	handlers map[protocol.MsgType]HandlerFunc
	log      *zap.Logger
}

// New creates an empty dispatcher.
func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[protocol.MsgType]HandlerFunc),
		log:      log,
	}
}

// Register binds a handler to a frame type. Not safe to call once
// Dispatch is running; wire the table up front.
func (d *Dispatcher) Register(t protocol.MsgType, h HandlerFunc) {
	d.handlers[t] = h
}

// Dispatch routes one frame. Unknown types return a fatal wire error
// carrying CodeUnknownType.
func (d *Dispatcher) Dispatch(sessionID uint64, frame *protocol.Frame) error {
	h, ok := d.handlers[frame.Type]
	if !ok {
		d.log.Warn("frame with unknown type",
			zap.Uint64("session_id", sessionID),
			zap.Stringer("type", frame.Type),
		)
		return protocol.NewWireError(protocol.CodeUnknownType, "unknown frame type", true)
	}
	return h(sessionID, frame)
}

// Handles reports whether a handler is registered for t.
func (d *Dispatcher) Handles(t protocol.MsgType) bool {
	_, ok := d.handlers[t]
	return ok
}
