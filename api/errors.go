// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared across the chat engine.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrQueueClosed       = fmt.Errorf("task queue is closed")
	ErrQueueFull         = fmt.Errorf("task queue is full")
	ErrSendQueueFull     = fmt.Errorf("send queue is full")
	ErrDuplicateIdentity = fmt.Errorf("identity already bound")
	ErrIdentityNotFound  = fmt.Errorf("identity not found")
	ErrSessionNotFound   = fmt.Errorf("session not found")
	ErrSessionClosed     = fmt.Errorf("session is closed")
	ErrServerClosed      = fmt.Errorf("server is closed")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrNotSupported      = fmt.Errorf("operation not supported")
)
