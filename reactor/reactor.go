// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral loop configuration, dependencies and the
// worker-facing Sender over the loop's outbox.

package reactor

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/bufpool"
	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/metrics"
)

// Config carries the loop's tunables. Zero values are replaced with
// serviceable defaults by New.
type Config struct {
	// ListenAddr is the host:port the loop binds, ":0" for an
	// ephemeral port.
	ListenAddr string

	// MaxConnections caps concurrently open sessions; excess accepts
	// are closed immediately. Zero means unlimited.
	MaxConnections int

	// MaxPayload bounds the declared payload length of inbound frames.
	MaxPayload int

	// ReadBuffer sizes the scratch buffer for draining a readable
	// socket.
	ReadBuffer int

	// SendQueue bounds the outbox channel between workers and the
	// loop.
	SendQueue int

	// IdleTimeout closes sessions with no inbound traffic for this
	// long. Zero disables the idle monitor.
	IdleTimeout time.Duration

	// DrainTimeout force-closes a Closing session whose outbound queue
	// has not emptied in time.
	DrainTimeout time.Duration

	// TickInterval sets the heartbeat granularity. Derived from
	// IdleTimeout when zero.
	TickInterval time.Duration

	// PinLoop pins the loop's OS thread to LoopCPU. Useful when the
	// host dedicates a core to network I/O.
	PinLoop bool

	// LoopCPU is the logical CPU for the loop thread when PinLoop is
	// set.
	LoopCPU int
}

// Deps wires the loop to the shared pipeline pieces it drives.
type Deps struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Table   *session.Table
	Tasks   *queue.TaskQueue
	Buffers *bufpool.Pool
}

// submission is one worker-to-loop request: either an encoded frame to
// queue on a session, or a close order for it.
type submission struct {
	sid     uint64
	frame   []byte
	closing bool
	reason  api.Reason
}

// phase tracks where the loop is in its lifecycle. Loop-thread-only.
type phase int32

const (
	phaseRunning  phase = iota // accepting and reading
	phaseDraining              // accepts and reads stopped, workers live
	phaseFlushing              // flushing outbound queues, then closing
	phaseStopped               // loop exiting
)

// Sender is the worker-facing write path. Send and Close place
// submissions on the loop's outbox and wake the poller; neither touches
// a socket. Both are safe for concurrent use from any goroutine.
type Sender struct {
	subs    chan<- submission
	wake    func()
	stopped *atomic.Bool
	done    <-chan struct{}
}

var _ api.Sender = (*Sender)(nil)

// Send queues an encoded frame for delivery to the session. It fails
// with api.ErrSendQueueFull under outbox pressure rather than block the
// calling worker, and with api.ErrServerClosed once the loop stopped.
// The session owning sessionID may be gone by the time the loop drains
// the outbox; such frames are silently discarded.
func (s *Sender) Send(sessionID uint64, frame []byte) error {
	if s.stopped.Load() {
		return api.ErrServerClosed
	}
	if len(frame) == 0 {
		return api.ErrInvalidArgument
	}
	select {
	case s.subs <- submission{sid: sessionID, frame: frame}:
		s.wake()
		return nil
	default:
		return api.ErrSendQueueFull
	}
}

// Close orders the loop to tear the session down with the given reason.
// Unlike Send it waits for outbox space: close orders must land, and
// the loop drains the outbox on every iteration.
func (s *Sender) Close(sessionID uint64, reason api.Reason) error {
	if s.stopped.Load() {
		return api.ErrServerClosed
	}
	select {
	case s.subs <- submission{sid: sessionID, closing: true, reason: reason}:
		s.wake()
		return nil
	case <-s.done:
		return api.ErrServerClosed
	}
}
