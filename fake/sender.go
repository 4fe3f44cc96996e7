// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the core interfaces.

package fake

import (
	"sync"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/protocol"
)

// Sender is a fake api.Sender that records frames and close requests
// instead of touching sockets.
type Sender struct {
	mu        sync.Mutex
	sent      map[uint64][][]byte
	closed    map[uint64]api.Reason
	sendError error
}

var _ api.Sender = (*Sender)(nil)

// NewSender creates an empty recording sender.
func NewSender() *Sender {
	return &Sender{
		sent:   make(map[uint64][][]byte),
		closed: make(map[uint64]api.Reason),
	}
}

// Send implements api.Sender.Send.
func (s *Sender) Send(sessionID uint64, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendError != nil {
		return s.sendError
	}
	frameCopy := make([]byte, len(frame))
	copy(frameCopy, frame)
	s.sent[sessionID] = append(s.sent[sessionID], frameCopy)
	return nil
}

// Close implements api.Sender.Close, recording the first reason.
func (s *Sender) Close(sessionID uint64, reason api.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.closed[sessionID]; !ok {
		s.closed[sessionID] = reason
	}
	return nil
}

// SetSendError configures Send to fail with err.
func (s *Sender) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendError = err
}

// SentTo returns the raw frames sent to a session.
func (s *Sender) SentTo(sessionID uint64) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent[sessionID]))
	copy(out, s.sent[sessionID])
	return out
}

// FramesTo decodes everything sent to a session.
func (s *Sender) FramesTo(sessionID uint64) []*protocol.Frame {
	var frames []*protocol.Frame
	for _, raw := range s.SentTo(sessionID) {
		window := raw
		for len(window) > 0 {
			f, consumed, err := protocol.DecodeFrame(window, protocol.MaxPayload)
			if err != nil || f == nil {
				break
			}
			frames = append(frames, f)
			window = window[consumed:]
		}
	}
	return frames
}

// CloseReason reports whether Close was requested for the session and
// with which reason.
func (s *Sender) CloseReason(sessionID uint64) (api.Reason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.closed[sessionID]
	return r, ok
}

// TotalSent counts frames across all sessions.
func (s *Sender) TotalSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, frames := range s.sent {
		n += len(frames)
	}
	return n
}

// Reset clears all recordings.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = make(map[uint64][][]byte)
	s.closed = make(map[uint64]api.Reason)
	s.sendError = nil
}
