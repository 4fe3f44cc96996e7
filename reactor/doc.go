// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded I/O loop of the server:
// an edge-triggered epoll poller owning the listening socket and every
// connection descriptor. The loop accepts, reads and frames inbound
// bytes, hands decoded frames to the task queue, and drains per-session
// outbound queues back to the kernel.
//
// All descriptor state is confined to the loop goroutine. Workers reach
// it only through the outbox channel and its eventfd wake; they never
// touch a socket.
package reactor
