// File: api/task.go
// Author: momentics <momentics@gmail.com>
//
// Task is the unit of work handed from the I/O thread to the worker
// pool. Construction transfers ownership: the producer never touches a
// task again after enqueueing it.

package api

import "github.com/momentics/hioload-chat/protocol"

// TaskKind discriminates the work a task carries.
type TaskKind uint8

const (
	// TaskFrame delivers one decoded inbound frame.
	TaskFrame TaskKind = iota
	// TaskDisconnect tells workers to release registry state for a
	// session the reactor has torn down.
	TaskDisconnect
	// TaskTick triggers periodic worker-side maintenance.
	TaskTick
)

func (k TaskKind) String() string {
	switch k {
	case TaskFrame:
		return "frame"
	case TaskDisconnect:
		return "disconnect"
	case TaskTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Task is immutable once enqueued. Frame is set for TaskFrame, Reason
// for TaskDisconnect; both are zero otherwise.
type Task struct {
	Kind      TaskKind
	SessionID uint64
	Frame     *protocol.Frame
	Reason    Reason
}
