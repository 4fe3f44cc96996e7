// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import "time"

// SessionState enumerates the lifecycle of a chat session. Transitions
// only move forward: Connecting -> Authenticated -> Closing -> Closed,
// with Connecting -> Closing allowed for sessions that never log in.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionAuthenticated
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionAuthenticated:
		return "authenticated"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reason classifies why a session is being torn down. It feeds logs
// and the per-reason disconnect metric.
type Reason int32

const (
	ReasonNone Reason = iota
	ReasonPeerClosed
	ReasonReadError
	ReasonWriteError
	ReasonProtocolError
	ReasonIdleTimeout
	ReasonEvicted
	ReasonServerShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonPeerClosed:
		return "peer_closed"
	case ReasonReadError:
		return "read_error"
	case ReasonWriteError:
		return "write_error"
	case ReasonProtocolError:
		return "protocol_error"
	case ReasonIdleTimeout:
		return "idle_timeout"
	case ReasonEvicted:
		return "evicted"
	case ReasonServerShutdown:
		return "server_shutdown"
	default:
		return "unknown"
	}
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name       string
	Version    string
	InstanceID string
	StartedAt  time.Time
}
