//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Thin epoll(7) wrapper with an eventfd wake channel. The poller holds
// no connection state; the loop decides what each readiness event
// means.

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Interest masks for registered descriptors. Connections run
// edge-triggered; the listener and the wake eventfd stay
// level-triggered.
const (
	pollConn   = uint32(unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET)
	pollWrite  = uint32(unix.EPOLLOUT)
	pollAccept = uint32(unix.EPOLLIN)
)

// poller wraps an epoll instance plus an eventfd used to interrupt a
// blocked wait from other goroutines.
type poller struct {
	epfd   int
	wakeFd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &poller{epfd: epfd, wakeFd: wakeFd}
	if err := p.add(wakeFd, unix.EPOLLIN); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// add registers fd with the given interest mask. Events for it carry
// the fd back in EpollEvent.Fd.
func (p *poller) add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// mod rewrites the interest mask of a registered fd.
func (p *poller) mod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// del removes fd from the interest set.
func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks until readiness events arrive or timeoutMs elapses.
// EINTR is absorbed and reported as an empty wait.
func (p *poller) wait(events []unix.EpollEvent, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, events, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}

// wake interrupts a blocked wait. Safe from any goroutine. EAGAIN
// means the counter is saturated and the loop will wake regardless.
func (p *poller) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(p.wakeFd, buf[:])
}

// drainWake resets the eventfd counter after a wake-up.
func (p *poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *poller) close() {
	unix.Close(p.wakeFd)
	unix.Close(p.epfd)
}
