//go:build !linux
// +build !linux

// File: reactor/loop_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without epoll. The server refuses to start here;
// the stub only keeps dependents compiling.

package reactor

import (
	"time"

	"github.com/momentics/hioload-chat/api"
)

// Loop is unavailable on this platform.
type Loop struct{}

// New reports that the reactor requires Linux.
func New(cfg Config, deps Deps) (*Loop, error) {
	return nil, api.ErrNotSupported
}

func (l *Loop) Run() error        { return api.ErrNotSupported }
func (l *Loop) Port() int         { return 0 }
func (l *Loop) Sender() api.Sender { return nil }

func (l *Loop) BeginDrain()                {}
func (l *Loop) Flush(timeout time.Duration) {}
func (l *Loop) Kill()                       {}

func (l *Loop) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
