// File: server/handlers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Chat business logic, executed on worker goroutines. Handlers never
// touch sockets: output leaves as encoded frames through the reactor
// outbox, and a returned WireError becomes an Error frame to the
// originating session.

package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/protocol"
)

// handleTask is the worker pool entry point for every task kind.
func (s *Server) handleTask(task api.Task) error {
	switch task.Kind {
	case api.TaskFrame:
		started := time.Now()
		err := s.dispatch.Dispatch(task.SessionID, task.Frame)
		s.met.DispatchSeconds.Observe(time.Since(started).Seconds())
		return err
	case api.TaskDisconnect:
		s.onDisconnect(task.SessionID, task.Reason)
	case api.TaskTick:
		s.onTick()
	}
	return nil
}

// handleLogin validates and binds the identity. Success is silent; the
// client learns of failure through a non-fatal Error frame and may
// retry on the same connection.
func (s *Server) handleLogin(sid uint64, frame *protocol.Frame) error {
	sess, ok := s.table.Get(sid)
	if !ok {
		return nil // closed while the task was queued
	}
	if sess.State() == api.SessionAuthenticated {
		return protocol.NewWireError(protocol.CodeAlreadyAuthenticated,
			"identity already bound on this connection", false)
	}
	identity, err := protocol.ParseIdentity(frame.Payload)
	if err != nil {
		return protocol.NewWireError(protocol.CodeInvalidIdentity, err.Error(), false)
	}
	evicted, err := s.registry.Register(identity, sid)
	if err != nil {
		return protocol.NewWireError(protocol.CodeDuplicateIdentity,
			fmt.Sprintf("identity %q already in use", identity), false)
	}
	if evicted != 0 {
		s.log.Info("evicting prior session for identity",
			zap.String("identity", identity),
			zap.Uint64("evicted_session", evicted),
			zap.Uint64("session_id", sid),
		)
		s.sender.Close(evicted, api.ReasonEvicted)
	}
	sess.BindIdentity(identity)
	if !sess.MarkAuthenticated() {
		// Began closing while we registered; undo the binding.
		s.registry.Unregister(identity, sid)
		return nil
	}
	s.met.AuthenticatedSessions.Set(float64(s.registry.Len()))
	s.log.Info("session authenticated",
		zap.Uint64("session_id", sid),
		zap.String("identity", identity),
		zap.String("remote", sess.Remote()),
	)
	return nil
}

// handleDirect routes recipient||text to the recipient as a relay
// frame carrying sender||text.
func (s *Server) handleDirect(sid uint64, frame *protocol.Frame) error {
	sess, werr := s.authenticated(sid)
	if werr != nil {
		return werr
	}
	if sess == nil {
		return nil
	}
	recipient, text, err := protocol.DecodeDirect(frame.Payload)
	if err != nil {
		return protocol.NewWireError(protocol.CodeMalformedPayload,
			"malformed message payload", true)
	}
	target, ok := s.registry.Lookup(recipient)
	if !ok {
		return protocol.NewWireError(protocol.CodeRecipientUnknown,
			fmt.Sprintf("unknown recipient %q", recipient), false)
	}
	out, err := s.encodeRelay(protocol.MsgMessage, sess.Identity(), text)
	if err != nil {
		return err
	}
	if err := s.sender.Send(target, out); err != nil {
		s.log.Warn("direct message not delivered",
			zap.Uint64("from", sid),
			zap.Uint64("to", target),
			zap.Error(err),
		)
		return protocol.NewWireError(protocol.CodeInternal, "delivery failed", false)
	}
	return nil
}

// handleBroadcast fans the text out to every bound identity from a
// point-in-time registry snapshot, excluding the sender unless
// configured otherwise. The relay frame is encoded once.
func (s *Server) handleBroadcast(sid uint64, frame *protocol.Frame) error {
	sess, werr := s.authenticated(sid)
	if werr != nil {
		return werr
	}
	if sess == nil {
		return nil
	}
	out, err := s.encodeRelay(protocol.MsgBroadcast, sess.Identity(), frame.Payload)
	if err != nil {
		return err
	}
	delivered := 0
	for _, target := range s.registry.Snapshot() {
		if target == sid && !s.cfg.BroadcastToSelf {
			continue
		}
		if err := s.sender.Send(target, out); err != nil {
			s.log.Debug("broadcast copy not delivered",
				zap.Uint64("to", target),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	s.met.BroadcastFanout.Observe(float64(delivered))
	return nil
}

// handlePing answers with the prebuilt Pong frame. Allowed before
// login: liveness probing needs no identity.
func (s *Server) handlePing(sid uint64, _ *protocol.Frame) error {
	if err := s.sender.Send(sid, s.pong); err != nil {
		s.log.Debug("pong not delivered",
			zap.Uint64("session_id", sid),
			zap.Error(err),
		)
	}
	return nil
}

// encodeRelay wraps sender||text into a complete outbound frame. With
// payload limits near the wire maximum the sender prefix can push a
// legal inbound text over the frame ceiling; that is reported to the
// sender, not fatal.
func (s *Server) encodeRelay(t protocol.MsgType, sender string, text []byte) ([]byte, error) {
	payload, err := protocol.EncodeRelay(sender, text)
	if err != nil {
		return nil, protocol.NewWireError(protocol.CodeFrameTooLarge,
			"message too large to relay", false)
	}
	out, err := protocol.EncodeFrame(t, payload)
	if err != nil {
		return nil, protocol.NewWireError(protocol.CodeFrameTooLarge,
			"message too large to relay", false)
	}
	return out, nil
}

// authenticated resolves the session and requires the Authenticated
// state. A missing session is not an error: it raced with teardown and
// the frame is dropped.
func (s *Server) authenticated(sid uint64) (*session.Session, *protocol.WireError) {
	sess, ok := s.table.Get(sid)
	if !ok {
		return nil, nil
	}
	if sess.State() != api.SessionAuthenticated {
		return nil, protocol.NewWireError(protocol.CodeNotAuthenticated,
			"login required", false)
	}
	return sess, nil
}

// onDisconnect releases the identity binding after the reactor began
// tearing the session down.
func (s *Server) onDisconnect(sid uint64, reason api.Reason) {
	if identity, ok := s.registry.UnregisterSession(sid); ok {
		s.log.Info("identity unbound",
			zap.String("identity", identity),
			zap.Uint64("session_id", sid),
			zap.Stringer("reason", reason),
		)
	}
	s.met.AuthenticatedSessions.Set(float64(s.registry.Len()))
}

// onTick sweeps bindings whose sessions are gone (disconnect tasks can
// be lost during shutdown races) and refreshes the session gauge.
func (s *Server) onTick() {
	for _, sid := range s.registry.Snapshot() {
		if _, ok := s.table.Get(sid); !ok {
			s.registry.UnregisterSession(sid)
		}
	}
	s.met.AuthenticatedSessions.Set(float64(s.registry.Len()))
}
