// File: internal/worker/pool.go
// Package worker implements the fixed pool that executes chat tasks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker i consumes lane i of the task queue, so session stickiness
// established at enqueue time carries through execution. A panicking
// handler loses its task, never its worker: the panic is recovered,
// counted and answered with a wire-level internal error.

package worker

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/protocol"
)

// TaskHandler processes one task. Returning a *protocol.WireError
// reports the failure to the peer; any other error is logged and
// answered with a generic internal error.
type TaskHandler func(task api.Task) error

// Pool runs one goroutine per queue lane.
type Pool struct {
	queue   *queue.TaskQueue
	handler TaskHandler
	sender  api.Sender
	log     *zap.Logger
	onPanic func()

	wg        sync.WaitGroup
	started   atomic.Bool
	processed atomic.Int64
	panics    atomic.Int64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers   int
	Processed int64
	Panics    int64
}

// New creates a pool bound to q. Workers do not start until Start.
func New(q *queue.TaskQueue, handler TaskHandler, sender api.Sender, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		queue:   q,
		handler: handler,
		sender:  sender,
		log:     log,
	}
}

// OnPanic registers a hook invoked once per recovered handler panic,
// in addition to the pool's own counter. Set it before Start.
func (p *Pool) OnPanic(fn func()) {
	p.onPanic = fn
}

// Start launches one worker per lane. Repeat calls are no-ops.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.queue.Lanes(); i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker has drained its lane and exited,
// which happens after the queue is closed.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.queue.Lanes(),
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	log := p.log.With(zap.Int("worker", id))
	log.Debug("worker started")
	for task := range p.queue.Lane(id) {
		p.execute(log, task)
	}
	log.Debug("worker drained lane and exited")
}

// execute runs one task, recovering from panics so the worker
// survives. Completion is counted in the defer, panics included.
func (p *Pool) execute(log *zap.Logger, task api.Task) {
	defer func() {
		p.processed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic()
			}
			log.Error("task handler panicked",
				zap.Any("panic", r),
				zap.Uint64("session_id", task.SessionID),
				zap.Stringer("kind", task.Kind),
				zap.Stack("stack"),
			)
			if task.Kind == api.TaskFrame {
				p.reportWireError(task.SessionID,
					protocol.NewWireError(protocol.CodeInternal, "internal error", false))
			}
		}
	}()

	err := p.handler(task)
	if err == nil {
		return
	}

	var we *protocol.WireError
	if errors.As(err, &we) {
		p.reportWireError(task.SessionID, we)
		return
	}

	log.Error("task failed",
		zap.Error(err),
		zap.Uint64("session_id", task.SessionID),
		zap.Stringer("kind", task.Kind),
	)
	if task.Kind == api.TaskFrame {
		p.reportWireError(task.SessionID,
			protocol.NewWireError(protocol.CodeInternal, "internal error", false))
	}
}

// reportWireError sends an Error frame to the session and, for fatal
// faults, asks the I/O thread to close it afterwards.
func (p *Pool) reportWireError(sid uint64, we *protocol.WireError) {
	frame, err := protocol.EncodeFrame(protocol.MsgError, we.Payload())
	if err != nil {
		return
	}
	if err := p.sender.Send(sid, frame); err != nil {
		p.log.Debug("error report dropped",
			zap.Uint64("session_id", sid),
			zap.Error(err),
		)
	}
	if we.Fatal {
		p.sender.Close(sid, api.ReasonProtocolError)
	}
}
