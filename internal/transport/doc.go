// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket primitives for the chat engine's I/O thread. Everything
// here works on bare file descriptors so the reactor keeps full control
// over readiness, buffering and lifetime; net.Conn is deliberately not
// used on the hot path. Linux is the supported platform, the stub
// variants report api.ErrNotSupported elsewhere.

package transport
