// File: internal/queue/queue.go
// Package queue implements the I/O-to-worker task handoff.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tasks flow through per-worker lanes. A session's tasks always route
// to the same lane, so one session is only ever processed by one
// worker and its frame order is preserved end to end. Shutdown closes
// the lanes; consumers drain what is buffered and exit on channel
// closure. There is no sentinel task.

package queue

import (
	"sync/atomic"

	"github.com/momentics/hioload-chat/api"
)

// OverflowPolicy selects producer behavior when a lane is full.
type OverflowPolicy int

const (
	// OverflowBlock parks the producer until the lane has room,
	// applying backpressure to the I/O thread.
	OverflowBlock OverflowPolicy = iota
	// OverflowDrop discards the task and reports it via the drop hook.
	OverflowDrop
)

// ParseOverflowPolicy maps a config string to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "", "block":
		return OverflowBlock, true
	case "drop":
		return OverflowDrop, true
	}
	return OverflowBlock, false
}

// TaskQueue is a fixed set of buffered lanes, one per worker. It has
// exactly one producer, the I/O thread; Close must only run after the
// producer has stopped, which the shutdown coordinator guarantees.
type TaskQueue struct {
	lanes  []chan api.Task
	policy OverflowPolicy
	onDrop func(api.Task)

	closed   atomic.Bool
	done     chan struct{}
	tickSeq  atomic.Uint64
	enqueued atomic.Int64
	dropped  atomic.Int64
}

// New creates a queue with one lane per worker, each buffering depth
// tasks. onDrop may be nil; it is invoked for every task discarded
// under OverflowDrop.
func New(workers, depth int, policy OverflowPolicy, onDrop func(api.Task)) *TaskQueue {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 1024
	}
	q := &TaskQueue{
		lanes:  make([]chan api.Task, workers),
		policy: policy,
		onDrop: onDrop,
		done:   make(chan struct{}),
	}
	for i := range q.lanes {
		q.lanes[i] = make(chan api.Task, depth)
	}
	return q
}

// Enqueue routes a task to its lane. Session-bound tasks pick the
// lane by session ID; tick tasks rotate. Returns api.ErrQueueClosed
// after Close, api.ErrQueueFull for drops under OverflowDrop.
func (q *TaskQueue) Enqueue(t api.Task) error {
	if q.closed.Load() {
		return api.ErrQueueClosed
	}
	lane := q.laneFor(t)

	if q.policy == OverflowDrop {
		select {
		case lane <- t:
			q.enqueued.Add(1)
			return nil
		default:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop(t)
			}
			return api.ErrQueueFull
		}
	}

	select {
	case lane <- t:
		q.enqueued.Add(1)
		return nil
	case <-q.done:
		return api.ErrQueueClosed
	}
}

// TryEnqueue routes a task without blocking, regardless of policy.
// api.ErrQueueFull reports a full lane and does not count as a drop;
// the producer decides how to retry. The I/O thread uses this to stay
// responsive to its outbox while lanes are saturated.
func (q *TaskQueue) TryEnqueue(t api.Task) error {
	if q.closed.Load() {
		return api.ErrQueueClosed
	}
	select {
	case q.laneFor(t) <- t:
		q.enqueued.Add(1)
		return nil
	default:
		return api.ErrQueueFull
	}
}

// Policy returns the configured overflow policy.
func (q *TaskQueue) Policy() OverflowPolicy {
	return q.policy
}

func (q *TaskQueue) laneFor(t api.Task) chan api.Task {
	if t.Kind == api.TaskTick {
		return q.lanes[q.tickSeq.Add(1)%uint64(len(q.lanes))]
	}
	return q.lanes[t.SessionID%uint64(len(q.lanes))]
}

// Lane exposes lane i for its consuming worker. Workers range over
// the channel and exit when it closes.
func (q *TaskQueue) Lane(i int) <-chan api.Task {
	return q.lanes[i]
}

// Lanes returns the lane count.
func (q *TaskQueue) Lanes() int {
	return len(q.lanes)
}

// Close marks the queue closed and closes every lane. Idempotent.
func (q *TaskQueue) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.done)
	for _, lane := range q.lanes {
		close(lane)
	}
}

// Depth returns the number of tasks currently buffered across lanes.
func (q *TaskQueue) Depth() int {
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// Enqueued returns the running count of accepted tasks.
func (q *TaskQueue) Enqueued() int64 {
	return q.enqueued.Load()
}

// Dropped returns the running count of discarded tasks.
func (q *TaskQueue) Dropped() int64 {
	return q.dropped.Load()
}
