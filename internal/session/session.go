// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core session implementation: lifecycle state machine, input window
// and outbound chunk queue.

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/bufpool"
)

// Session holds per-connection state. Buffer and queue methods are
// I/O-thread-only; identity methods are worker-side; state, reason and
// activity fields are safe from any goroutine.
type Session struct {
	id     uint64
	fd     int
	remote string

	state        atomic.Int32
	reason       atomic.Int32
	lastActivity atomic.Int64
	closingSince atomic.Int64

	mu       sync.Mutex
	identity string

	// I/O-thread-owned. in[start:end] is the unparsed input window.
	in    []byte
	start int
	end   int

	// I/O-thread-owned outbound FIFO of encoded frame chunks.
	// outHead is the write offset into the front chunk.
	out      *queue.Queue
	outHead  int
	outBytes int

	// I/O-thread-owned: whether write readiness is currently armed in
	// the poller for this descriptor.
	writeArmed bool
}

// New creates a session in the Connecting state. The input window is
// drawn from pool and returned to it by ReleaseBuffers.
func New(id uint64, fd int, remote string, pool *bufpool.Pool) *Session {
	s := &Session{
		id:     id,
		fd:     fd,
		remote: remote,
		in:     pool.Get(),
		out:    queue.New(),
	}
	s.state.Store(int32(api.SessionConnecting))
	s.lastActivity.Store(time.Now().UnixNano())
	return s
}

// ID returns the numeric session identifier.
func (s *Session) ID() uint64 { return s.id }

// Fd returns the connection descriptor.
func (s *Session) Fd() int { return s.fd }

// Remote returns the peer address in host:port form.
func (s *Session) Remote() string { return s.remote }

// State returns the current lifecycle state.
func (s *Session) State() api.SessionState {
	return api.SessionState(s.state.Load())
}

// Reason returns the teardown cause recorded by the first successful
// MarkClosing.
func (s *Session) Reason() api.Reason {
	return api.Reason(s.reason.Load())
}

// MarkAuthenticated moves Connecting -> Authenticated. It reports
// false if the session already left Connecting.
func (s *Session) MarkAuthenticated() bool {
	return s.state.CompareAndSwap(int32(api.SessionConnecting), int32(api.SessionAuthenticated))
}

// MarkClosing moves Connecting or Authenticated -> Closing and records
// the first teardown reason. Repeat calls are no-ops, so whichever
// failure won the race defines the logged cause.
func (s *Session) MarkClosing(reason api.Reason) bool {
	moved := s.state.CompareAndSwap(int32(api.SessionConnecting), int32(api.SessionClosing)) ||
		s.state.CompareAndSwap(int32(api.SessionAuthenticated), int32(api.SessionClosing))
	if moved {
		s.reason.CompareAndSwap(int32(api.ReasonNone), int32(reason))
		s.closingSince.Store(time.Now().UnixNano())
	}
	return moved
}

// MarkClosed moves Closing -> Closed. Closed is terminal.
func (s *Session) MarkClosed() bool {
	return s.state.CompareAndSwap(int32(api.SessionClosing), int32(api.SessionClosed))
}

// Alive reports whether the session still accepts traffic.
func (s *Session) Alive() bool {
	st := s.State()
	return st == api.SessionConnecting || st == api.SessionAuthenticated
}

// Touch records read-side activity for the idle monitor.
func (s *Session) Touch(now int64) {
	s.lastActivity.Store(now)
}

// LastActivity returns the unix-nano timestamp of the last read.
func (s *Session) LastActivity() int64 {
	return s.lastActivity.Load()
}

// ClosingSince returns when the session entered Closing, zero if it
// has not.
func (s *Session) ClosingSince() int64 {
	return s.closingSince.Load()
}

// BindIdentity stores the authenticated identity. Worker-side.
func (s *Session) BindIdentity(identity string) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// Identity returns the bound identity, empty before login.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Buffer appends freshly read bytes to the input window, compacting
// or growing through pool size classes as needed.
func (s *Session) Buffer(data []byte, pool *bufpool.Pool) {
	need := s.end - s.start + len(data)
	if need > cap(s.in) {
		grown := pool.GetSize(need)
		n := copy(grown, s.in[s.start:s.end])
		pool.Put(s.in)
		s.in = grown
		s.start, s.end = 0, n
	} else if s.end+len(data) > cap(s.in) {
		n := copy(s.in, s.in[s.start:s.end])
		s.start, s.end = 0, n
	}
	s.end += copy(s.in[s.end:cap(s.in)], data)
}

// Window returns the unparsed input bytes. The slice is invalidated by
// the next Buffer or Consume call.
func (s *Session) Window() []byte {
	return s.in[s.start:s.end]
}

// Consume advances past n parsed bytes.
func (s *Session) Consume(n int) {
	s.start += n
	if s.start >= s.end {
		s.start, s.end = 0, 0
	}
}

// QueueWrite appends an encoded frame to the outbound FIFO. The
// session takes ownership of the chunk.
func (s *Session) QueueWrite(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.out.Add(chunk)
	s.outBytes += len(chunk)
}

// PendingOutput returns the total bytes waiting to be written.
func (s *Session) PendingOutput() int {
	return s.outBytes
}

// NextChunk returns the unwritten remainder of the front chunk.
func (s *Session) NextChunk() ([]byte, bool) {
	if s.out.Length() == 0 {
		return nil, false
	}
	chunk := s.out.Peek().([]byte)
	return chunk[s.outHead:], true
}

// AdvanceWrite records n bytes written from the front chunk, dropping
// the chunk once fully flushed.
func (s *Session) AdvanceWrite(n int) {
	s.outHead += n
	s.outBytes -= n
	if s.out.Length() > 0 && s.outHead >= len(s.out.Peek().([]byte)) {
		s.out.Remove()
		s.outHead = 0
	}
}

// WriteArmed reports whether the poller currently watches the
// descriptor for write readiness. I/O-thread-only.
func (s *Session) WriteArmed() bool {
	return s.writeArmed
}

// SetWriteArmed records the poller's write-interest state.
// I/O-thread-only.
func (s *Session) SetWriteArmed(armed bool) {
	s.writeArmed = armed
}

// ReleaseBuffers returns pooled memory and drops queued output. Called
// once by the I/O thread right before the descriptor is closed.
func (s *Session) ReleaseBuffers(pool *bufpool.Pool) {
	if s.in != nil {
		pool.Put(s.in)
		s.in = nil
	}
	for s.out.Length() > 0 {
		s.out.Remove()
	}
	s.outHead, s.outBytes = 0, 0
	s.start, s.end = 0, 0
}
