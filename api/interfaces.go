// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// Sender delivers encoded frames to sessions and requests teardown.
// It is the only way worker goroutines reach a socket: the
// implementation serializes everything onto the I/O thread, preserving
// the single-writer discipline on buffers and file descriptors.
// Safe for concurrent use.
type Sender interface {
	// Send queues an already-encoded frame for the session. It never
	// blocks on socket I/O; ErrSendQueueFull reports outbox pressure
	// and ErrServerClosed a reactor that is gone.
	Send(sessionID uint64, frame []byte) error

	// Close asks the I/O thread to tear the session down after
	// flushing output queued so far.
	Close(sessionID uint64, reason Reason) error
}

// Registry maps authenticated identities to live session IDs. All
// methods are safe for concurrent use; lookups proceed in parallel,
// mutations are exclusive.
type Registry interface {
	// Register binds identity to sessionID. Under the reject policy a
	// duplicate identity returns ErrDuplicateIdentity. Under the evict
	// policy the previous binding is replaced and its session ID
	// returned so the caller can disconnect it.
	Register(identity string, sessionID uint64) (evicted uint64, err error)

	// Unregister removes the binding only if it still points at
	// sessionID, reporting whether a binding was removed.
	Unregister(identity string, sessionID uint64) bool

	// Lookup resolves an identity to its session ID.
	Lookup(identity string) (uint64, bool)

	// Snapshot returns the session IDs of all bound identities at one
	// point in time. The slice is the caller's to keep.
	Snapshot() []uint64

	// Len returns the number of bound identities.
	Len() int
}

// BytePool defines a reusable buffer pool.
type BytePool interface {
	Get() []byte
	Put([]byte)
}
