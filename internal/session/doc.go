// Package session
// Author: momentics <momentics@gmail.com>
//
// Session, session table and identity registry for the chat engine.
// Each Session maps to one connected client. Ownership is split by
// thread: the I/O thread owns the socket, the input window and the
// outbound queue; workers own the identity binding and the registry.
// State and liveness fields are atomics readable from both sides.
package session
