//go:build linux
// +build linux

// File: reactor/loop_linux.go
// Author: momentics <momentics@gmail.com>
//
// The event loop: accept, edge-triggered read and frame decode, task
// handoff, outbound flush, idle and drain timers, shutdown phases.

package reactor

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/affinity"
	"github.com/momentics/hioload-chat/internal/bufpool"
	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/internal/transport"
	"github.com/momentics/hioload-chat/metrics"
	"github.com/momentics/hioload-chat/protocol"
)

const maxEvents = 256

// ctrl messages steer the loop from other goroutines.
type ctrlKind int

const (
	ctrlBeginDrain ctrlKind = iota
	ctrlFlush
	ctrlKill
)

type ctrlMsg struct {
	kind    ctrlKind
	timeout time.Duration
	ack     chan struct{}
}

// Loop is the single-threaded reactor. Everything below the shared
// dependencies is confined to the loop goroutine; other goroutines
// steer it only through ctrl, the outbox and the eventfd wake.
type Loop struct {
	cfg     Config
	log     *zap.Logger
	met     *metrics.Metrics
	table   *session.Table
	tasks   *queue.TaskQueue
	buffers *bufpool.Pool

	poll     *poller
	listenFd int
	port     int

	conns   map[int]*session.Session
	scratch []byte
	nextID  uint64
	ticks   uint64

	phase         phase
	flushDeadline time.Time

	subs    chan submission
	ctrl    chan ctrlMsg
	stopped atomic.Bool
	done    chan struct{}
}

// New binds the listen socket and creates the epoll instance. Startup
// failures surface here, before any goroutine runs.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Tasks == nil {
		return nil, fmt.Errorf("reactor: %w: nil task queue", api.ErrInvalidArgument)
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 64 * 1024
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 4096
	}
	if cfg.MaxPayload <= 0 || cfg.MaxPayload > protocol.MaxPayload {
		cfg.MaxPayload = protocol.MaxPayload
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
		if cfg.IdleTimeout > 0 && cfg.IdleTimeout/4 < cfg.TickInterval {
			cfg.TickInterval = cfg.IdleTimeout / 4
		}
		if cfg.TickInterval < 10*time.Millisecond {
			cfg.TickInterval = 10 * time.Millisecond
		}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	if deps.Table == nil {
		deps.Table = session.NewTable(0)
	}
	if deps.Buffers == nil {
		deps.Buffers = bufpool.New(0, 0)
	}

	listenFd, err := transport.Listen(cfg.ListenAddr, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: listen %s: %w", cfg.ListenAddr, err)
	}
	port, err := transport.LocalPort(listenFd)
	if err != nil {
		transport.CloseFd(listenFd)
		return nil, fmt.Errorf("reactor: local port: %w", err)
	}
	poll, err := newPoller()
	if err != nil {
		transport.CloseFd(listenFd)
		return nil, fmt.Errorf("reactor: epoll: %w", err)
	}
	if err := poll.add(listenFd, pollAccept); err != nil {
		poll.close()
		transport.CloseFd(listenFd)
		return nil, fmt.Errorf("reactor: register listener: %w", err)
	}

	return &Loop{
		cfg:      cfg,
		log:      deps.Log,
		met:      deps.Metrics,
		table:    deps.Table,
		tasks:    deps.Tasks,
		buffers:  deps.Buffers,
		poll:     poll,
		listenFd: listenFd,
		port:     port,
		conns:    make(map[int]*session.Session, 1024),
		scratch:  make([]byte, cfg.ReadBuffer),
		subs:     make(chan submission, cfg.SendQueue),
		ctrl:     make(chan ctrlMsg, 4),
		done:     make(chan struct{}),
	}, nil
}

// Port returns the bound listen port.
func (l *Loop) Port() int { return l.port }

// Done is closed when Run has fully exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Sender returns the worker-facing write path into this loop.
func (l *Loop) Sender() api.Sender {
	return &Sender{subs: l.subs, wake: l.poll.wake, stopped: &l.stopped, done: l.done}
}

// Run drives the loop until a kill order or the flush phase completes.
// It pins its goroutine to an OS thread for the duration.
func (l *Loop) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)
	defer l.teardown()

	if l.cfg.PinLoop {
		if err := affinity.Pin(l.cfg.LoopCPU); err != nil {
			l.log.Warn("reactor: cpu pinning failed", zap.Error(err))
		}
	}

	l.log.Info("reactor: listening",
		zap.String("addr", l.cfg.ListenAddr),
		zap.Int("port", l.port))

	events := make([]unix.EpollEvent, maxEvents)
	next := time.Now().Add(l.cfg.TickInterval)
	for {
		timeout := int(time.Until(next) / time.Millisecond)
		if timeout < 0 {
			timeout = 0
		}
		if l.phase == phaseFlushing && timeout > 50 {
			timeout = 50
		}
		n, err := l.poll.wait(events, timeout)
		if err != nil {
			if l.phase == phaseStopped {
				return nil
			}
			return fmt.Errorf("reactor: wait: %w", err)
		}
		for i := 0; i < n; i++ {
			l.handleEvent(int(events[i].Fd), events[i].Events)
		}
		l.drainOutbox(0)
		l.drainCtrl()
		if now := time.Now(); !now.Before(next) {
			l.heartbeat(now)
			next = now.Add(l.cfg.TickInterval)
		}
		switch l.phase {
		case phaseStopped:
			return nil
		case phaseFlushing:
			if len(l.conns) == 0 || time.Now().After(l.flushDeadline) {
				l.stop()
				return nil
			}
		}
	}
}

// BeginDrain stops accepting and reading while workers keep running.
// It returns once the loop acknowledged the phase change; after that no
// new task reaches the queue from this loop except disconnects.
func (l *Loop) BeginDrain() {
	l.steer(ctrlMsg{kind: ctrlBeginDrain, ack: make(chan struct{})})
}

// Flush tells the loop to close every session after flushing its
// pending output, bounded by timeout, and then exit. Call after the
// workers have drained.
func (l *Loop) Flush(timeout time.Duration) {
	l.steer(ctrlMsg{kind: ctrlFlush, timeout: timeout, ack: make(chan struct{})})
}

// Kill aborts the loop without flushing.
func (l *Loop) Kill() {
	l.steer(ctrlMsg{kind: ctrlKill})
}

func (l *Loop) steer(m ctrlMsg) {
	select {
	case l.ctrl <- m:
		l.poll.wake()
	case <-l.done:
		return
	}
	if m.ack != nil {
		select {
		case <-m.ack:
		case <-l.done:
		}
	}
}

func (l *Loop) handleEvent(fd int, ev uint32) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("reactor: event handler panic",
				zap.Int("fd", fd),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	switch fd {
	case l.poll.wakeFd:
		l.poll.drainWake()
	case l.listenFd:
		l.acceptReady()
	default:
		s, ok := l.conns[fd]
		if !ok {
			return
		}
		if ev&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			l.readReady(s)
		}
		if ev&unix.EPOLLOUT != 0 && s.State() != api.SessionClosed {
			l.flushSession(s)
		}
	}
}

// acceptReady drains the accept queue. Level-triggered, so a partial
// drain re-fires, but looping to EAGAIN keeps bursts cheap.
func (l *Loop) acceptReady() {
	if l.phase != phaseRunning {
		return
	}
	for {
		fd, remote, err := transport.Accept(l.listenFd)
		if err != nil {
			if !errors.Is(err, transport.ErrWouldBlock) {
				l.log.Warn("reactor: accept failed", zap.Error(err))
			}
			return
		}
		if l.cfg.MaxConnections > 0 && len(l.conns) >= l.cfg.MaxConnections {
			l.met.RejectedTotal.Inc()
			l.log.Warn("reactor: connection limit reached",
				zap.String("remote", remote),
				zap.Int("limit", l.cfg.MaxConnections))
			transport.CloseFd(fd)
			continue
		}
		if err := transport.SetNoDelay(fd); err != nil {
			l.log.Debug("reactor: nodelay", zap.Int("fd", fd), zap.Error(err))
		}
		l.nextID++
		s := session.New(l.nextID, fd, remote, l.buffers)
		if err := l.poll.add(fd, pollConn); err != nil {
			l.log.Warn("reactor: register connection failed", zap.Error(err))
			transport.CloseFd(fd)
			s.ReleaseBuffers(l.buffers)
			continue
		}
		l.conns[fd] = s
		l.table.Add(s)
		l.met.ActiveConnections.Inc()
		l.met.AcceptedTotal.Inc()
		l.log.Debug("reactor: accepted",
			zap.Uint64("session", s.ID()),
			zap.String("remote", remote))
	}
}

// readReady drains the socket to EAGAIN, buffering and decoding as it
// goes. Required under edge triggering: a partial read would silence
// the descriptor.
func (l *Loop) readReady(s *session.Session) {
	if l.phase != phaseRunning || !s.Alive() {
		return
	}
	for {
		n, err := transport.Read(s.Fd(), l.scratch)
		if n > 0 {
			s.Touch(time.Now().UnixNano())
			s.Buffer(l.scratch[:n], l.buffers)
			if !l.parseFrames(s) {
				return
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrWouldBlock):
			case errors.Is(err, io.EOF):
				l.beginClose(s, api.ReasonPeerClosed)
			default:
				l.log.Debug("reactor: read error",
					zap.Uint64("session", s.ID()),
					zap.Error(err))
				l.beginClose(s, api.ReasonReadError)
			}
			return
		}
	}
}

// parseFrames decodes every complete frame in the input window and
// hands each to the task queue. It reports false when the session
// stopped accepting traffic.
func (l *Loop) parseFrames(s *session.Session) bool {
	for {
		frame, consumed, err := protocol.DecodeFrame(s.Window(), l.cfg.MaxPayload)
		if err != nil {
			l.rejectFrame(s, err)
			return false
		}
		if frame == nil {
			return true
		}
		s.Consume(consumed)
		l.met.RecordFrameIn(frame.Type, len(frame.Payload))
		l.enqueueFrame(s, frame)
		if !s.Alive() {
			return false
		}
	}
}

// rejectFrame answers an undecodable stream with a fatal wire error and
// starts teardown. The stream cannot be re-synchronized past a bad
// header.
func (l *Loop) rejectFrame(s *session.Session, cause error) {
	l.log.Warn("reactor: rejecting frame",
		zap.Uint64("session", s.ID()),
		zap.String("remote", s.Remote()),
		zap.Error(cause))
	wireErr := protocol.NewWireError(protocol.CodeFrameTooLarge, cause.Error(), true)
	if out, err := protocol.EncodeFrame(protocol.MsgError, wireErr.Payload()); err == nil {
		l.queueOutput(s, out)
	}
	l.beginClose(s, api.ReasonProtocolError)
}

func (l *Loop) enqueueFrame(s *session.Session, f *protocol.Frame) {
	t := api.Task{Kind: api.TaskFrame, SessionID: s.ID(), Frame: f}
	if err := l.enqueue(t); err != nil {
		if errors.Is(err, api.ErrQueueClosed) {
			l.beginClose(s, api.ReasonServerShutdown)
			return
		}
		// Dropped under pressure; the queue counted it.
	}
}

// enqueue hands a task to the queue honoring the overflow policy. With
// the block policy it retries while consuming worker submissions, so a
// saturated pipeline keeps moving instead of deadlocking the loop
// against its own workers.
func (l *Loop) enqueue(t api.Task) error {
	if l.tasks.Policy() == queue.OverflowDrop {
		return l.tasks.Enqueue(t)
	}
	for {
		err := l.tasks.TryEnqueue(t)
		if err == nil || !errors.Is(err, api.ErrQueueFull) {
			return err
		}
		if l.drainOutbox(64) == 0 {
			time.Sleep(50 * time.Microsecond)
		}
	}
}

// drainOutbox applies queued worker submissions, up to max of them
// (0 = all pending). Loop-thread-only.
func (l *Loop) drainOutbox(max int) int {
	n := 0
	for {
		select {
		case sub := <-l.subs:
			l.applySubmission(sub)
			n++
			if max > 0 && n >= max {
				return n
			}
		default:
			return n
		}
	}
}

func (l *Loop) applySubmission(sub submission) {
	s, ok := l.table.Get(sub.sid)
	if !ok {
		return
	}
	if sub.closing {
		l.beginClose(s, sub.reason)
		return
	}
	if !s.Alive() {
		return
	}
	l.queueOutput(s, sub.frame)
}

// queueOutput appends an encoded frame to the session's outbound FIFO
// and flushes opportunistically.
func (l *Loop) queueOutput(s *session.Session, frame []byte) {
	s.QueueWrite(frame)
	if len(frame) >= protocol.HeaderSize {
		l.met.RecordFrameOut(protocol.MsgType(frame[0]), len(frame)-protocol.HeaderSize)
	}
	l.flushSession(s)
}

// flushSession writes queued output until EAGAIN or empty. Write
// readiness stays armed only while output is pending, so an idle
// writable socket does not spin the loop.
func (l *Loop) flushSession(s *session.Session) {
	if s.State() == api.SessionClosed {
		return
	}
	for {
		chunk, ok := s.NextChunk()
		if !ok {
			l.disarmWrite(s)
			if s.State() == api.SessionClosing {
				l.finalize(s)
			}
			return
		}
		n, err := transport.Write(s.Fd(), chunk)
		if n > 0 {
			s.AdvanceWrite(n)
		}
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				l.armWrite(s)
				return
			}
			l.log.Debug("reactor: write error",
				zap.Uint64("session", s.ID()),
				zap.Error(err))
			if s.MarkClosing(api.ReasonWriteError) {
				l.notifyDisconnect(s, api.ReasonWriteError)
			}
			l.finalize(s)
			return
		}
	}
}

func (l *Loop) armWrite(s *session.Session) {
	if s.WriteArmed() {
		return
	}
	if err := l.poll.mod(s.Fd(), pollConn|pollWrite); err != nil {
		l.log.Warn("reactor: arm write failed",
			zap.Uint64("session", s.ID()),
			zap.Error(err))
		return
	}
	s.SetWriteArmed(true)
}

func (l *Loop) disarmWrite(s *session.Session) {
	if !s.WriteArmed() {
		return
	}
	if err := l.poll.mod(s.Fd(), pollConn); err != nil {
		l.log.Warn("reactor: disarm write failed",
			zap.Uint64("session", s.ID()),
			zap.Error(err))
		return
	}
	s.SetWriteArmed(false)
}

// beginClose moves a session into teardown with the given reason. The
// descriptor closes once pending output is flushed; the drain timer
// bounds how long that may take.
func (l *Loop) beginClose(s *session.Session, reason api.Reason) {
	if !s.MarkClosing(reason) {
		if s.State() == api.SessionClosing && s.PendingOutput() == 0 {
			l.finalize(s)
		}
		return
	}
	l.notifyDisconnect(s, reason)
	if s.PendingOutput() == 0 {
		l.finalize(s)
		return
	}
	l.flushSession(s)
}

// notifyDisconnect queues the worker-side cleanup task that unbinds the
// session's identity. Once draining begins the loop enqueues nothing,
// which lets the coordinator close the queue without racing a
// producer; the worker tick sweep covers bindings orphaned that way.
func (l *Loop) notifyDisconnect(s *session.Session, reason api.Reason) {
	if l.phase != phaseRunning {
		return
	}
	t := api.Task{Kind: api.TaskDisconnect, SessionID: s.ID(), Reason: reason}
	if err := l.enqueue(t); err != nil {
		l.log.Debug("reactor: disconnect task not queued",
			zap.Uint64("session", s.ID()),
			zap.Error(err))
	}
}

// finalize releases the descriptor and every session resource. Last
// step of teardown; the session must already be Closing.
func (l *Loop) finalize(s *session.Session) {
	if !s.MarkClosed() {
		return
	}
	fd := s.Fd()
	l.poll.del(fd)
	transport.CloseFd(fd)
	delete(l.conns, fd)
	l.table.Remove(s.ID())
	s.ReleaseBuffers(l.buffers)
	l.met.ActiveConnections.Dec()
	l.met.RecordDisconnect(s.Reason())
	l.log.Debug("reactor: closed",
		zap.Uint64("session", s.ID()),
		zap.String("remote", s.Remote()),
		zap.String("reason", s.Reason().String()))
}

// heartbeat runs once per tick: idle expiry, drain deadlines, gauge
// refresh and the worker tick task.
func (l *Loop) heartbeat(now time.Time) {
	l.ticks++
	nowNanos := now.UnixNano()
	idle := l.cfg.IdleTimeout
	drain := l.cfg.DrainTimeout

	var expired, overdue []*session.Session
	for _, s := range l.conns {
		switch s.State() {
		case api.SessionConnecting, api.SessionAuthenticated:
			if idle > 0 && nowNanos-s.LastActivity() > int64(idle) {
				expired = append(expired, s)
			}
		case api.SessionClosing:
			if drain > 0 && nowNanos-s.ClosingSince() > int64(drain) {
				overdue = append(overdue, s)
			}
		}
	}
	for _, s := range expired {
		l.log.Debug("reactor: idle timeout",
			zap.Uint64("session", s.ID()),
			zap.String("remote", s.Remote()))
		l.beginClose(s, api.ReasonIdleTimeout)
	}
	for _, s := range overdue {
		l.finalize(s)
	}

	l.met.QueueDepth.Set(float64(l.tasks.Depth()))
	l.met.OutboxDepth.Set(float64(len(l.subs)))
	if l.phase == phaseRunning {
		_ = l.tasks.TryEnqueue(api.Task{Kind: api.TaskTick})
	}
}

func (l *Loop) drainCtrl() {
	for {
		select {
		case m := <-l.ctrl:
			l.applyCtrl(m)
		default:
			return
		}
	}
}

func (l *Loop) applyCtrl(m ctrlMsg) {
	switch m.kind {
	case ctrlBeginDrain:
		if l.phase == phaseRunning {
			l.phase = phaseDraining
			l.closeListener()
			l.log.Info("reactor: draining", zap.Int("sessions", len(l.conns)))
		}
	case ctrlFlush:
		if l.phase == phaseRunning || l.phase == phaseDraining {
			l.phase = phaseFlushing
			l.flushDeadline = time.Now().Add(m.timeout)
			l.closeListener()
			for _, s := range l.snapshotConns() {
				l.beginClose(s, api.ReasonServerShutdown)
			}
			l.log.Info("reactor: flushing", zap.Int("sessions", len(l.conns)))
		}
	case ctrlKill:
		l.stop()
	}
	if m.ack != nil {
		close(m.ack)
	}
}

// snapshotConns copies the descriptor map's sessions so callers can
// mutate it while iterating.
func (l *Loop) snapshotConns() []*session.Session {
	out := make([]*session.Session, 0, len(l.conns))
	for _, s := range l.conns {
		out = append(out, s)
	}
	return out
}

func (l *Loop) closeListener() {
	if l.listenFd < 0 {
		return
	}
	l.poll.del(l.listenFd)
	transport.CloseFd(l.listenFd)
	l.listenFd = -1
}

// stop force-closes whatever is left and marks the loop stopped.
func (l *Loop) stop() {
	if l.phase == phaseStopped {
		return
	}
	l.phase = phaseStopped
	l.stopped.Store(true)
	l.closeListener()
	for _, s := range l.snapshotConns() {
		s.MarkClosing(api.ReasonServerShutdown)
		l.finalize(s)
	}
}

func (l *Loop) teardown() {
	l.stop()
	l.poll.close()
}
